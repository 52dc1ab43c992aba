package models

import "time"

// LeadSource identifies where a lead entered the platform.
type LeadSource string

const (
	SourceSite         LeadSource = "site"
	SourceReferral     LeadSource = "referral"
	SourcePaid         LeadSource = "paid"
	SourceMessagingApp LeadSource = "messaging-app"
	SourcePublicSite   LeadSource = "public-site"
)

// Qualification is the tier assigned by the external scoring service.
type Qualification string

const (
	QualificationHot  Qualification = "hot"
	QualificationWarm Qualification = "warm"
	QualificationCold Qualification = "cold"
)

// Lead is a prospective buyer moving through a broker's pipeline.
//
// TimePerStage accumulates dwell hours per stage id and only ever grows.
// TotalClosingDurationDays is stamped exactly once, the first time the
// lead enters a terminal stage.
type Lead struct {
	ID               string             `json:"id" bson:"_id,omitempty"`
	BrokerID         string             `json:"broker_id" bson:"brokerId"`
	Name             string             `json:"name" bson:"name"`
	ContactPhone     string             `json:"contact_phone,omitempty" bson:"contactPhone,omitempty"`
	ContactEmail     string             `json:"contact_email,omitempty" bson:"contactEmail,omitempty"`
	PropertyInterest string             `json:"property_interest,omitempty" bson:"propertyInterest,omitempty"`
	Source           LeadSource         `json:"source" bson:"source"`
	Status           string             `json:"status" bson:"status"`
	Qualification    Qualification      `json:"qualification,omitempty" bson:"qualification,omitempty"`
	TimePerStage     map[string]float64 `json:"time_per_stage" bson:"timePerStage,omitempty"`

	// Denormalized broker contact for leads created by the routing
	// engine, so the messaging handoff does not need a second read.
	BrokerName  string `json:"broker_name,omitempty" bson:"brokerName,omitempty"`
	BrokerPhone string `json:"broker_phone,omitempty" bson:"brokerPhone,omitempty"`

	TotalClosingDurationDays *float64  `json:"total_closing_duration_days,omitempty" bson:"totalClosingDurationDays,omitempty"`
	CreatedAt                time.Time `json:"created_at" bson:"createdAt"`
	UpdatedAt                time.Time `json:"updated_at" bson:"updatedAt,omitempty"`
}

// TransitionEntry is one immutable record of a lead's stage move.
// Entries for a lead are totally ordered by ChangedAt; the newest entry
// (or the lead's CreatedAt when none exist) marks the start of dwell in
// the lead's current stage.
type TransitionEntry struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	LeadID    string    `json:"lead_id" bson:"leadId"`
	FromStage string    `json:"from_stage" bson:"fromStage"`
	ToStage   string    `json:"to_stage" bson:"toStage"`
	ChangedAt time.Time `json:"changed_at" bson:"changedAt"`
	ChangedBy string    `json:"changed_by" bson:"changedBy"`
}
