package models

// Collection names in the document store.
const (
	CollectionStages      = "stages"
	CollectionLeads       = "leads"
	CollectionTransitions = "lead_transitions"
	CollectionBrokers     = "brokers"
	CollectionCursors     = "routing_cursors"
)

// Stage ids that mark a closing outcome. Entering one of these for the
// first time stamps the lead's total closing duration.
var TerminalStageIDs = map[string]bool{
	"converted": true,
	"lost":      true,
}

// Stage is one column of a broker's kanban pipeline. The document id in
// the stages collection is "<brokerId>:<id>" so a slug only has to be
// unique within a single broker's pipeline.
type Stage struct {
	BrokerID string `json:"broker_id" bson:"brokerId"`
	ID       string `json:"id" bson:"id"`
	Title    string `json:"title" bson:"title"`
	Order    int    `json:"order" bson:"order"`
	Color    string `json:"color,omitempty" bson:"color,omitempty"`
}

// DocID returns the stage's document id in the stages collection.
func (s Stage) DocID() string {
	return s.BrokerID + ":" + s.ID
}

// IsTerminal reports whether the stage marks a closing outcome.
func (s Stage) IsTerminal() bool {
	return TerminalStageIDs[s.ID]
}

// StageEdit is one entry of a pipeline save request. Exactly one of ID
// and TempID is set: ID references an existing stage, TempID is the
// client-side placeholder for a stage added in the editor that gets a
// stable slug id minted at save time.
type StageEdit struct {
	ID     string `json:"id,omitempty"`
	TempID string `json:"temp_id,omitempty"`
	Title  string `json:"title" validate:"required,max=60"`
	Color  string `json:"color,omitempty" validate:"omitempty,max=24"`
}

// IsNew reports whether the edit describes a stage not yet persisted.
func (e StageEdit) IsNew() bool {
	return e.ID == ""
}

// DefaultStages returns the five-column pipeline seeded on a broker's
// first access, orders 1..5.
func DefaultStages(brokerID string) []Stage {
	defaults := []struct {
		id, title, color string
	}{
		{"new", "New", "blue"},
		{"contacted", "Contacted", "cyan"},
		{"qualified", "Qualified", "amber"},
		{"proposal", "Proposal", "purple"},
		{"converted", "Converted", "green"},
	}

	stages := make([]Stage, len(defaults))
	for i, d := range defaults {
		stages[i] = Stage{
			BrokerID: brokerID,
			ID:       d.id,
			Title:    d.title,
			Order:    i + 1,
			Color:    d.color,
		}
	}
	return stages
}
