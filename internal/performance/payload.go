package performance

import (
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the event timestamp format: ISO-8601 in UTC with
// microsecond precision and a trailing Z.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// UserContext identifies one virtual user. It is created at spawn and
// never modified afterwards.
type UserContext struct {
	UserID    uuid.UUID
	StartedAt time.Time
}

// NewUserContext creates a context with a fresh random user id.
func NewUserContext(now time.Time) UserContext {
	return UserContext{
		UserID:    uuid.New(),
		StartedAt: now,
	}
}

// Metadata marks an event as synthetic load.
type Metadata struct {
	AppVersion string `json:"app_version"`
	Platform   string `json:"platform"`
	LoadTest   bool   `json:"load_test"`
}

// LoadTestMetadata is attached to every generated event.
var LoadTestMetadata = Metadata{
	AppVersion: "2.1.0",
	Platform:   "web",
	LoadTest:   true,
}

// Payload is the JSON body of one event.
type Payload struct {
	UserID    string                 `json:"user_id"`
	EventType string                 `json:"event_type"`
	Timestamp string                 `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
	Priority  int                    `json:"priority"`
	Metadata  Metadata               `json:"metadata"`
}

// BuildPayload creates the event body for task on behalf of a user.
// The timestamp is taken from now.
func BuildPayload(task TaskDefinition, uctx UserContext, rng *rand.Rand, now time.Time) *Payload {
	build := task.Build
	if build == nil {
		build = BuilderFor(task.Category)
	}

	body := build(uctx, rng)
	if body == nil {
		body = map[string]interface{}{}
	}

	return &Payload{
		UserID:    uctx.UserID.String(),
		EventType: task.Category,
		Timestamp: now.UTC().Format(TimestampLayout),
		Payload:   body,
		Priority:  task.Priority,
		Metadata:  LoadTestMetadata,
	}
}

// BuilderFor returns the payload builder for a category. Categories
// without a specific shape get an empty payload.
func BuilderFor(category string) PayloadBuilder {
	switch category {
	case CategoryClick:
		return ClickPayload
	case CategoryPurchase:
		return PurchasePayload
	default:
		return EmptyPayload
	}
}

// ClickPayload describes a click on the buy button of a product page.
func ClickPayload(UserContext, *rand.Rand) map[string]interface{} {
	return map[string]interface{}{
		"button": "buy_now",
		"page":   "/products/123",
	}
}

// PurchaseAmount is the fixed amount of generated purchases.
const PurchaseAmount = 99.99

// PurchasePayload describes a purchase of a randomly named item.
func PurchasePayload(UserContext, *rand.Rand) map[string]interface{} {
	return map[string]interface{}{
		"item_id":  "item_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		"amount":   PurchaseAmount,
		"currency": "USD",
	}
}

// EmptyPayload is used for categories that carry no extra data.
func EmptyPayload(UserContext, *rand.Rand) map[string]interface{} {
	return map[string]interface{}{}
}
