package github

// Wire shapes for the subset of the GitHub REST API the adapter
// consumes (§6 "Forge wire shapes consumed"), grounded on the teacher's
// internal/provider_input/github/github_types.go field naming.

type pullRequestResponse struct {
	Body string        `json:"body"`
	Head pullRequestRef `json:"head"`
	Base pullRequestRef `json:"base"`
	// Merged and State resolve a linked PR's isMerged/isClosed, not the
	// PR under evaluation's own metadata.
	Merged bool   `json:"merged"`
	State  string `json:"state"`
	Number int    `json:"number"`
}

type pullRequestRef struct {
	Ref  string        `json:"ref"`
	Repo pullRequestRepo `json:"repo"`
}

type pullRequestRepo struct {
	Name  string          `json:"name"`
	Owner pullRequestOwner `json:"owner"`
}

type pullRequestOwner struct {
	Login string `json:"login"`
}

type pullRequestFile struct {
	Filename         string `json:"filename"`
	PreviousFilename string `json:"previous_filename"`
	Status           string `json:"status"`
	Additions        int    `json:"additions"`
	Deletions        int    `json:"deletions"`
	Patch            string `json:"patch"`
}

type contentsResponse struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}
