package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Persona describes an AI council participant's identity and decision-making
// style. It is immutable except through explicit refinement calls.
type Persona struct {
	Name          string   `json:"name"`
	Model         string   `json:"model,omitempty"`
	Values        []string `json:"values"`
	Traits        []string `json:"traits"`
	Background    string   `json:"background"`
	DecisionStyle string   `json:"decisionStyle"`
}

// ChatMessage is a single turn in a participant's running context.
type ChatMessage struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// ChatHistory is stored as a JSON column.
type ChatHistory []ChatMessage

// Member is an active council participant. Created by promotion, destroyed
// (converted to Candidate) by demotion.
type Member struct {
	ID          string  `gorm:"primaryKey;size:64"`
	Persona     Persona `gorm:"type:json"`
	CreatedAt   time.Time
	PromotedAt  time.Time
	ChatHistory ChatHistory `gorm:"type:json"`
}

// Candidate is a pool participant competing for promotion. Fitness is the
// cumulative count of votes received across practice and promotion rounds,
// reset to zero when a member is demoted into the pool.
type Candidate struct {
	ID             string  `gorm:"primaryKey;size:64"`
	Persona        Persona `gorm:"type:json"`
	CreatedAt      time.Time
	Fitness        int
	ChatHistory    ChatHistory `gorm:"type:json"`
	Evicted        bool        `gorm:"index"`
	EvictedAt      *time.Time
	EvictionReason string `gorm:"size:1024"`
}

// StringList is stored as a JSON column.
type StringList []string

// RosterState is the singleton versioned aggregate of council membership and
// pool sizing. All mutation goes through the store's optimistic-concurrency
// commit; Version is the compare-and-swap guard.
type RosterState struct {
	ID                    uint       `gorm:"primaryKey"`
	MemberIDs             StringList `gorm:"type:json"`
	CandidateIDs          StringList `gorm:"type:json"`
	TargetPoolSize        int
	RoundsSinceEviction   int
	LastRemovalCauses     StringList `gorm:"type:json"` // newest first, max 10
	RemovalHistorySummary string     `gorm:"type:text"`
	Version               uint64
}

const (
	// RemovalCauseLimit bounds the LastRemovalCauses ring.
	RemovalCauseLimit = 10
	// MinPoolSize and MaxPoolSize bound TargetPoolSize.
	MinPoolSize = 3
	MaxPoolSize = 20
)

// PushRemovalCause prepends a cause to the bounded ring.
func (s *RosterState) PushRemovalCause(cause string) {
	causes := append(StringList{cause}, s.LastRemovalCauses...)
	if len(causes) > RemovalCauseLimit {
		causes = causes[:RemovalCauseLimit]
	}
	s.LastRemovalCauses = causes
}

// Contains reports whether the list holds id.
func (l StringList) Contains(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// Without returns a copy of the list with id removed.
func (l StringList) Without(id string) StringList {
	out := make(StringList, 0, len(l))
	for _, v := range l {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (p Persona) Value() (driver.Value, error)     { return jsonValue(p) }
func (p *Persona) Scan(src interface{}) error      { return jsonScan(src, p) }
func (h ChatHistory) Value() (driver.Value, error) { return jsonValue(h) }
func (h *ChatHistory) Scan(src interface{}) error  { return jsonScan(src, h) }
func (l StringList) Value() (driver.Value, error)  { return jsonValue(l) }
func (l *StringList) Scan(src interface{}) error   { return jsonScan(src, l) }

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src, dst interface{}) error {
	switch s := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(s) == 0 {
			return nil
		}
		return json.Unmarshal(s, dst)
	case string:
		if s == "" {
			return nil
		}
		return json.Unmarshal([]byte(s), dst)
	default:
		return fmt.Errorf("types: cannot scan %T into JSON column", src)
	}
}
