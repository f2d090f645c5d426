package core

// FileStore persists user attachments. Implementations should be thread-safe
// and scope files by session identifier. Short method names (Save/Get/List/
// Delete) mirror other store interfaces for consistency.
type FileStore interface {
	Save(sessionID, fileID string, data []byte) error
	Get(sessionID, fileID string) ([]byte, error)
	List(sessionID string) ([]string, error)
	Delete(sessionID, fileID string) error
}
