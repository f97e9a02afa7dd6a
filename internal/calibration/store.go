package calibration

import "github.com/aprep/backend/internal/models"

// ItemParameterStore is the persistence boundary for calibrated item
// parameters. The calibration logic depends only on this interface so the
// backing store can change without touching the math.
//
// Put must behave as an atomic replace of the item's record; Get returns
// (nil, nil) for an unknown item.
type ItemParameterStore interface {
	Get(itemID string) (*models.IRTParameters, error)
	Put(params *models.IRTParameters) error
	List() ([]*models.IRTParameters, error)
}

// AnchorStore persists topic-scoped anchor items, keyed by
// (course_id, topic_id).
type AnchorStore interface {
	Add(anchor *models.AnchorItem) error
	ForTopic(courseID, topicID string) ([]*models.AnchorItem, error)
	List() ([]*models.AnchorItem, error)
}

// ResponseStore is the append-only log of observed response events.
type ResponseStore interface {
	Append(r *models.ResponseData) error
	ListByItem(itemID string) ([]models.ResponseData, error)
	ItemIDs() ([]string, error)
}
