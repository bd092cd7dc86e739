package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// hashView mirrors Event minus event_hash. Marshaling it yields the canonical
// serialization used as hash input; field order must stay identical to Event.
type hashView struct {
	ID            string         `json:"id"`
	Timestamp     string         `json:"timestamp"`
	SpaceID       string         `json:"space_id"`
	Action        string         `json:"action"`
	ActorUserID   string         `json:"actor_user_id"`
	Outcome       string         `json:"outcome"`
	TargetType    *string        `json:"target_type"`
	TargetID      *string        `json:"target_id"`
	RequestMethod *string        `json:"request_method"`
	RequestPath   *string        `json:"request_path"`
	RequestID     *string        `json:"request_id"`
	Metadata      map[string]any `json:"metadata"`
	PrevHash      string         `json:"prev_hash"`
}

// canonicalBytes returns the canonical serialization of the event with
// event_hash omitted.
func canonicalBytes(e *Event) ([]byte, error) {
	view := hashView{
		ID:            e.ID,
		Timestamp:     e.Timestamp,
		SpaceID:       e.SpaceID,
		Action:        e.Action,
		ActorUserID:   e.ActorUserID,
		Outcome:       e.Outcome,
		TargetType:    e.TargetType,
		TargetID:      e.TargetID,
		RequestMethod: e.RequestMethod,
		RequestPath:   e.RequestPath,
		RequestID:     e.RequestID,
		Metadata:      e.Metadata,
		PrevHash:      e.PrevHash,
	}
	data, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("serialize audit event: %w", err)
	}
	return data, nil
}

// eventHash computes hex(SHA-256(prevHash + ":" + canonical)).
func eventHash(e *Event, prevHash string) (string, error) {
	canonical, err := canonicalBytes(e)
	if err != nil {
		return "", err
	}
	digest := sha256.New()
	digest.Write([]byte(prevHash))
	digest.Write([]byte{':'})
	digest.Write(canonical)
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// verifyChain walks the event sequence from the root sentinel, recomputing
// each event's hash and checking chain linkage. It is deterministic and
// side-effect free. A mismatch is fatal for the caller: corrupted ledgers are
// never auto-repaired.
func verifyChain(events []*Event) error {
	prevHash := RootHash
	for i, event := range events {
		if event.EventHash == "" {
			return fmt.Errorf("%w (event %d)", ErrMissingEventHash, i)
		}
		if event.PrevHash != prevHash {
			return fmt.Errorf("%w (event %d)", ErrPrevHashMismatch, i)
		}
		actual, err := eventHash(event, prevHash)
		if err != nil {
			return err
		}
		if actual != event.EventHash {
			return fmt.Errorf("%w (event %d)", ErrIntegrityViolation, i)
		}
		prevHash = event.EventHash
	}
	return nil
}

// rehashChain re-roots the sequence: the first event's prev_hash becomes the
// root sentinel and every event_hash is recomputed in order. Content fields
// are left untouched. Used after retention trimming.
func rehashChain(events []*Event) error {
	prevHash := RootHash
	for _, event := range events {
		event.PrevHash = prevHash
		hash, err := eventHash(event, prevHash)
		if err != nil {
			return err
		}
		event.EventHash = hash
		prevHash = hash
	}
	return nil
}
