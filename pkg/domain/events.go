package domain

import "time"

// ChangeEvent announces a committed mutation to other readers of the document.
type ChangeEvent struct {
	Revision  uint64     `json:"revision"`
	Operation string     `json:"operation"`
	Entity    EntityType `json:"entity"`
	EntityID  string     `json:"entity_id"`
	At        time.Time  `json:"at"`
}
