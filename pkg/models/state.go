package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// QueueSnapshot is the transient, per-tick view of one mapped queue.
type QueueSnapshot struct {
	QueueName       string
	PendingMessages int64
	ActiveConsumers int
	// Unknown is set when the Broker Queue Probe failed for this queue this
	// tick. Rules that depend on this queue's depth or consumer count must
	// be skipped rather than treating Unknown as zero.
	Unknown bool
}

// QueueConsumerState is the persistent, per-(app, queue) observation record.
type QueueConsumerState struct {
	LastConsumerSeen    time.Time `json:"lastConsumerSeen"`
	LastMessageSeen     time.Time `json:"lastMessageSeen"`
	HasActiveConsumers  bool      `json:"hasActiveConsumers"`
	MessageCount        int64     `json:"messageCount"`
	FirstMessageSeenAt  time.Time `json:"firstMessageSeenAt,omitempty"`
	LastProcessingAlert time.Time `json:"lastProcessingAlert,omitempty"`
	ProcessingAlertCount int      `json:"processingAlertCount"`
}

// IdleDuration returns how long the queue has been continuously non-empty,
// clock-skew tolerant (never negative).
func (q QueueConsumerState) IdleDuration(now time.Time) time.Duration {
	if q.FirstMessageSeenAt.IsZero() {
		return 0
	}
	d := now.Sub(q.FirstMessageSeenAt)
	if d < 0 {
		return 0
	}
	return d
}

// RestartAttempt is one entry in the bounded restart ledger.
type RestartAttempt struct {
	Timestamp     time.Time `json:"timestamp"`
	Reason        string    `json:"reason"`
	AttemptNumber int       `json:"attemptNumber"`
	Success       bool      `json:"success"`
}

// MaxRestartHistory bounds the length of RuntimeState.RestartHistory.
const MaxRestartHistory = 20

// RuntimeState is the durable, per-app record the Action Executor and
// Monitoring Worker read-modify-write under the app's mutex.
//
// Schema note: QueueConsumerStatusJSON and RestartHistoryJSON are the wire
// columns (see pkg/store); QueueConsumerStatus and RestartHistory are the
// decoded, in-memory view used everywhere else.
type RuntimeState struct {
	PartitionKey string `gorm:"column:partition_key;primaryKey" json:"-"`
	ContainerApp string `gorm:"column:row_key;primaryKey" json:"containerApp"`

	LastStart           time.Time `json:"lastStart"`
	LastStop            time.Time `json:"lastStop"`
	LastRestart         time.Time `json:"lastRestart"`
	LastNonZeroDepthAt  time.Time `json:"lastNonZeroDepthAt"`
	LastScheduleStart   time.Time `json:"lastScheduleStart"`
	ScheduleActiveUntil time.Time `json:"scheduleActiveUntil"`

	LastAction       string `json:"lastAction"`
	LastActionResult string `json:"lastActionResult"`

	CooldownUntil time.Time `json:"cooldownUntil"`

	RestartAttemptCount int               `json:"restartAttemptCount"`
	LastRestartTime     time.Time         `json:"lastRestartTime"`
	RestartHistory      []RestartAttempt  `gorm:"-" json:"restartHistory"`
	RestartHistoryJSON  restartHistoryCol `gorm:"column:restart_history_json" json:"-"`

	QueueConsumerStatus     map[string]QueueConsumerState `gorm:"-" json:"queueConsumerStatus"`
	QueueConsumerStatusJSON queueStatusCol                `gorm:"column:queue_consumer_status_json" json:"-"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRuntimeState builds the fresh, zero-valued state for an app that has
// never been acted on (load-not-found case).
func NewRuntimeState(containerApp string) RuntimeState {
	return RuntimeState{
		PartitionKey:        "state",
		ContainerApp:        containerApp,
		QueueConsumerStatus: make(map[string]QueueConsumerState),
	}
}

// PruneStaleQueues removes QueueConsumerStatus entries for queues no longer
// present in the mapping's current Queues list.
func (s *RuntimeState) PruneStaleQueues(currentQueues []string) {
	if s.QueueConsumerStatus == nil {
		s.QueueConsumerStatus = make(map[string]QueueConsumerState)
		return
	}
	keep := make(map[string]bool, len(currentQueues))
	for _, q := range currentQueues {
		keep[q] = true
	}
	for k := range s.QueueConsumerStatus {
		if !keep[k] {
			delete(s.QueueConsumerStatus, k)
		}
	}
}

// AppendRestartAttempt records a restart attempt, keeping the history
// bounded and in non-decreasing timestamp order.
func (s *RuntimeState) AppendRestartAttempt(a RestartAttempt) {
	s.RestartHistory = append(s.RestartHistory, a)
	if len(s.RestartHistory) > MaxRestartHistory {
		s.RestartHistory = s.RestartHistory[len(s.RestartHistory)-MaxRestartHistory:]
	}
}

// LastNRestarts returns the most recent n restart-history rows, oldest
// first, for inclusion in notification bodies.
func (s *RuntimeState) LastNRestarts(n int) []RestartAttempt {
	if n >= len(s.RestartHistory) {
		return s.RestartHistory
	}
	return s.RestartHistory[len(s.RestartHistory)-n:]
}

// restartHistoryCol / queueStatusCol implement GORM's Scanner/Valuer so the
// JSON sub-objects round-trip through a single jsonb column, exactly as the
// teacher's RetryPolicy/ResourceConstraints do in pkg/models/job.go.

type restartHistoryCol struct {
	Version int               `json:"v"`
	Entries []RestartAttempt  `json:"entries"`
}

func (c *restartHistoryCol) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("restartHistoryCol: type assertion to []byte failed")
	}
	if len(bytes) == 0 {
		return nil
	}
	// Unknown fields are ignored by encoding/json by default, keeping the
	// schema forward compatible.
	return json.Unmarshal(bytes, c)
}

func (c restartHistoryCol) Value() (driver.Value, error) {
	if c.Version == 0 {
		c.Version = 1
	}
	return json.Marshal(c)
}

type queueStatusCol struct {
	Version int                           `json:"v"`
	Queues  map[string]QueueConsumerState `json:"queues"`
}

func (c *queueStatusCol) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("queueStatusCol: type assertion to []byte failed")
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, c)
}

func (c queueStatusCol) Value() (driver.Value, error) {
	if c.Version == 0 {
		c.Version = 1
	}
	return json.Marshal(c)
}

// encodeForStorage/decodeFromStorage bridge the in-memory view
// (RestartHistory, QueueConsumerStatus) and the GORM-persisted JSON columns.
// The store package calls these immediately before Save and after Load so
// every other package only ever sees the decoded view.

func (s *RuntimeState) EncodeForStorage() {
	s.RestartHistoryJSON = restartHistoryCol{Version: 1, Entries: s.RestartHistory}
	s.QueueConsumerStatusJSON = queueStatusCol{Version: 1, Queues: s.QueueConsumerStatus}
}

func (s *RuntimeState) DecodeFromStorage() {
	s.RestartHistory = s.RestartHistoryJSON.Entries
	if s.QueueConsumerStatusJSON.Queues != nil {
		s.QueueConsumerStatus = s.QueueConsumerStatusJSON.Queues
	} else if s.QueueConsumerStatus == nil {
		s.QueueConsumerStatus = make(map[string]QueueConsumerState)
	}
}
