package flows

// Deps groups flow dependency sets. The Engine builds this once in Build.
type Deps struct {
	Login     LoginDeps
	Authorize AuthorizeDeps
	Logout    LogoutDeps
}
