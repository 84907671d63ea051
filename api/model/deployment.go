package model

import "time"

// Phase is a state of the deployment state machine.
type Phase string

const (
	PhaseValidating Phase = "validating"
	PhaseFetching   Phase = "fetching"
	PhaseBuilding   Phase = "building"
	PhaseListing    Phase = "listing"
	PhaseClearing   Phase = "clearing"
	PhaseUploading  Phase = "uploading"
	PhaseFinalizing Phase = "finalizing"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// DeployRequest is one accepted deployment job. It does not change
// while the job runs.
type DeployRequest struct {
	JobID      string `json:"jobId"`
	CallerID   string `json:"callerId"`
	Credential string `json:"-"`
	Repo       Repo   `json:"repo"`
}

// Repo is a validated owner/name reference on the source host.
type Repo struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// Result is the terminal value handed back to the caller. Exactly one
// of URL or Error is set.
type Result struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Succeeded(url string) Result {
	return Result{Success: true, URL: url, Message: "Deployment completed successfully"}
}

func Failed(msg string) Result {
	if msg == "" {
		msg = "Deployment failed"
	}
	return Result{Success: false, Error: msg}
}

// User is the caller's usage record as kept by the user store.
type User struct {
	ID             string     `json:"id"`
	GitHubID       string     `json:"githubId"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	AvatarURL      string     `json:"avatarUrl,omitempty"`
	Deployments    int        `json:"deployments"`
	LastDeployedAt *time.Time `json:"lastDeployedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// RepoSummary is one repository the caller can see on the source host,
// as offered for deployment.
type RepoSummary struct {
	FullName      string    `json:"full_name"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Private       bool      `json:"private"`
	HTMLURL       string    `json:"html_url"`
	DefaultBranch string    `json:"default_branch"`
	Language      string    `json:"language,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
