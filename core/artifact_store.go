package core

// ArtifactStore persists exported session artifacts. Implementations must be
// safe for concurrent use and scope artifacts by session identifier.
type ArtifactStore interface {
	Save(sessionID, artifactID string, data []byte) error
	Get(sessionID, artifactID string) ([]byte, error)
	List(sessionID string) ([]string, error)
	Delete(sessionID, artifactID string) error
}
