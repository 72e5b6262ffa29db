package domain

import "time"

// ArtifactRef identifies one stored binary variant in the artifact store.
// For the Telegram channel store this is the document file id.
type ArtifactRef string

// Tier selects the quality of the external transformation.
type Tier string

const (
	TierStandard Tier = "standard"
	TierImproved Tier = "improved"
)

// Stage enumerates the offer lifecycle of a processed image. Stages are
// totally ordered; an image advances one stage at a time and never moves
// backwards. StagePaid is terminal.
type Stage int

const (
	StageNew Stage = iota
	StageImprovedOffered
	StageDiscount290Offered
	StageDiscount190Offered
	StageDiscount99Offered
	StagePaid
)

var stageNames = map[Stage]string{
	StageNew:                "new",
	StageImprovedOffered:    "improved_offered",
	StageDiscount290Offered: "discount_290_offered",
	StageDiscount190Offered: "discount_190_offered",
	StageDiscount99Offered:  "discount_99_offered",
	StagePaid:               "paid",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further stage transition is allowed.
func (s Stage) Terminal() bool {
	return s == StagePaid
}

// CanAdvanceTo is the single authoritative transition rule: the only legal
// non-payment transition is to the immediate next stage, and nothing moves
// once paid. Payment is allowed from any non-terminal stage.
func (s Stage) CanAdvanceTo(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StagePaid {
		return true
	}
	return next == s+1 && next < StagePaid
}

// Image is the persistent record of one successfully processed submission.
type Image struct {
	ID     int64
	UserID int64
	Key    string

	Original ArtifactRef

	StdTransparent   ArtifactRef
	StdMono          ArtifactRef
	StdTransparentWM ArtifactRef
	StdMonoWM        ArtifactRef

	ImpTransparent   ArtifactRef
	ImpMono          ArtifactRef
	ImpTransparentWM ArtifactRef
	ImpMonoWM        ArtifactRef

	Paid      bool
	Stage     Stage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasImproved reports whether the improved artifact pair has been produced.
func (i *Image) HasImproved() bool {
	return i.ImpTransparent != "" && i.ImpMono != ""
}

// UnpaidImage pairs an unpaid image with the requester chat it belongs to,
// for the escalation sweep.
type UnpaidImage struct {
	Image
	RequesterID int64
}

// ImprovedRefs carries the artifact references produced by an improved-mode
// pipeline run.
type ImprovedRefs struct {
	Transparent   ArtifactRef
	Mono          ArtifactRef
	TransparentWM ArtifactRef
	MonoWM        ArtifactRef
}
