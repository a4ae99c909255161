package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parroquiasbdebarinas-lang/Server/internal/chat"
	"github.com/parroquiasbdebarinas-lang/Server/internal/metrics"
	"github.com/parroquiasbdebarinas-lang/Server/internal/protocol"
	"github.com/parroquiasbdebarinas-lang/Server/internal/report"
)

// DefaultBanReason is used when an admin bans without giving a reason.
const DefaultBanReason = "Comportamiento inadecuado"

// HistoryStore is the slice of the history store the controller needs.
type HistoryStore interface {
	Append(ctx context.Context, m chat.Message) error
	Trim(ctx context.Context, keep int) error
	FindByID(ctx context.Context, id string) (*chat.Message, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteAll(ctx context.Context) error
}

// BanWriter is the slice of the ban store the controller needs.
type BanWriter interface {
	BanPermanently(ctx context.Context, ip, reason string) (bool, error)
	SuspendUntil(ctx context.Context, ip, reason string, expiresAt int64) error
}

// ReportSink persists user-submitted reports.
type ReportSink interface {
	Create(ctx context.Context, r report.Report) error
}

// Disconnector force-closes every admitted connection from an address,
// delivering notice first. It returns the number of connections closed and
// completes synchronously, so a banned user cannot race the ban to send one
// more message.
type Disconnector interface {
	DisconnectByAddr(addr string, notice []byte) int
}

// Controller executes admin commands against the stores and re-broadcasts
// the resulting effects. Authorization happens at the dispatch layer; the
// controller assumes its caller holds the admin role (except FileReport,
// which any client may invoke).
type Controller struct {
	history  HistoryStore
	bans     BanWriter
	reports  ReportSink
	bus      chat.Broadcaster
	sessions Disconnector
	retain   int

	now func() time.Time
}

// NewController wires a Controller. retain is the history retention bound
// applied after system notices are appended; zero disables trimming.
func NewController(history HistoryStore, bans BanWriter, reports ReportSink, bus chat.Broadcaster, sessions Disconnector, retain int) *Controller {
	return &Controller{
		history:  history,
		bans:     bans,
		reports:  reports,
		bus:      bus,
		sessions: sessions,
		retain:   retain,
		now:      time.Now,
	}
}

// DeleteMessage removes a single message and tells every client to drop it.
// An unknown id is a silent no-op: nothing is deleted and nothing broadcast.
func (c *Controller) DeleteMessage(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	deleted, err := c.history.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("moderation: delete message: %w", err)
	}
	if !deleted {
		return nil
	}

	payload, err := protocol.NewServerMessage(protocol.TypeMessageDeleted, protocol.MessageDeletedMsg{ID: id})
	if err != nil {
		return fmt.Errorf("moderation: encode deletion: %w", err)
	}
	if err := c.bus.BroadcastAll(payload); err != nil {
		return fmt.Errorf("moderation: broadcast deletion: %w", err)
	}

	metrics.ModerationActionsTotal.WithLabelValues("delete").Inc()
	return nil
}

// ClearChat removes every message and tells every client to reset.
func (c *Controller) ClearChat(ctx context.Context) error {
	if err := c.history.DeleteAll(ctx); err != nil {
		return fmt.Errorf("moderation: clear chat: %w", err)
	}

	payload, err := protocol.NewServerMessage(protocol.TypeChatCleared, protocol.ChatClearedMsg{})
	if err != nil {
		return fmt.Errorf("moderation: encode clear: %w", err)
	}
	if err := c.bus.BroadcastAll(payload); err != nil {
		return fmt.Errorf("moderation: broadcast clear: %w", err)
	}

	metrics.ModerationActionsTotal.WithLabelValues("clear").Inc()
	return nil
}

// BanUser permanently bans the address behind the referenced message,
// disconnects every live session from that address, and posts a system
// notice. Unknown message ids, messages without a recorded address, and
// already-banned addresses are silent no-ops.
func (c *Controller) BanUser(ctx context.Context, msgID, reason string) error {
	if reason == "" {
		reason = DefaultBanReason
	}

	msg, err := c.history.FindByID(ctx, msgID)
	if err != nil {
		return fmt.Errorf("moderation: ban lookup: %w", err)
	}
	if msg == nil || msg.IP == "" {
		return nil
	}

	created, err := c.bans.BanPermanently(ctx, msg.IP, reason)
	if err != nil {
		return fmt.Errorf("moderation: ban insert: %w", err)
	}
	if !created {
		return nil
	}

	// Kick live sessions before announcing, so the banned user cannot slip
	// in another message between the ban and the notice.
	notice, _ := protocol.NewServerMessage(protocol.TypeBanned, protocol.BannedMsg{
		Reason: "Has sido baneado permanentemente. Razón: " + reason,
	})
	c.sessions.DisconnectByAddr(msg.IP, notice)

	metrics.ModerationActionsTotal.WithLabelValues("ban").Inc()
	return c.postSystemNotice(ctx, fmt.Sprintf("El usuario %s ha sido bloqueado. Razón: %s", msg.User, reason))
}

// TempBanUser suspends the address behind the referenced message until
// now + duration. A new suspension replaces any existing one for that
// address. Unit is "seconds", "minutes" or "hours"; anything else counts as
// minutes.
func (c *Controller) TempBanUser(ctx context.Context, msgID string, amount int, unit, reason string) error {
	msg, err := c.history.FindByID(ctx, msgID)
	if err != nil {
		return fmt.Errorf("moderation: temp ban lookup: %w", err)
	}
	if msg == nil || msg.IP == "" {
		return nil
	}

	expiresAt := c.now().UnixMilli() + durationMillis(amount, unit)
	if err := c.bans.SuspendUntil(ctx, msg.IP, reason, expiresAt); err != nil {
		return fmt.Errorf("moderation: temp ban upsert: %w", err)
	}

	notice, _ := protocol.NewServerMessage(protocol.TypeBanned, protocol.BannedMsg{
		Reason: fmt.Sprintf("Suspendido temporalmente por %d %s. Razón: %s", amount, normalizeUnit(unit), reason),
	})
	c.sessions.DisconnectByAddr(msg.IP, notice)

	metrics.ModerationActionsTotal.WithLabelValues("temp_ban").Inc()
	return c.postSystemNotice(ctx, fmt.Sprintf("El usuario %s ha sido suspendido temporalmente (%d %s). Razón: %s",
		msg.User, amount, normalizeUnit(unit), reason))
}

// SystemMessage posts an operator notice to the chat. System messages skip
// the profanity filter and ban checks and carry no address.
func (c *Controller) SystemMessage(ctx context.Context, text string) error {
	metrics.ModerationActionsTotal.WithLabelValues("system").Inc()
	return c.postSystemNotice(ctx, text)
}

// FileReport snapshots the referenced message into a new report and notifies
// admin connections. An unknown message id is a silent no-op. The snapshot
// is a copy, not a reference: the report stays intact if the message is
// later deleted.
func (c *Controller) FileReport(ctx context.Context, msgID, reason, reporterIP string) error {
	msg, err := c.history.FindByID(ctx, msgID)
	if err != nil {
		return fmt.Errorf("moderation: report lookup: %w", err)
	}
	if msg == nil {
		return nil
	}

	r := report.Report{
		ID:          uuid.New().String(),
		ReportedMsg: *msg,
		Reason:      reason,
		ReporterIP:  reporterIP,
		Timestamp:   c.now().UnixMilli(),
	}
	if err := c.reports.Create(ctx, r); err != nil {
		return fmt.Errorf("moderation: persist report: %w", err)
	}

	payload, err := protocol.NewServerMessage(protocol.TypeNewReport, protocol.NewReportMsg{Report: r})
	if err != nil {
		return fmt.Errorf("moderation: encode report: %w", err)
	}
	if err := c.bus.BroadcastAdmins(payload); err != nil {
		return fmt.Errorf("moderation: notify admins: %w", err)
	}

	metrics.ModerationActionsTotal.WithLabelValues("report").Inc()
	return nil
}

// postSystemNotice persists and broadcasts a SISTEMA message. It follows the
// same persist-then-broadcast order as the pipeline so a notice is never
// seen by clients without being stored.
func (c *Controller) postSystemNotice(ctx context.Context, text string) error {
	msg := chat.Message{
		ID:        uuid.New().String(),
		User:      chat.SystemUser,
		Text:      text,
		IsSystem:  true,
		Timestamp: c.now().UnixMilli(),
	}

	if err := c.history.Append(ctx, msg); err != nil {
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("moderation: persist notice: %w", err)
	}
	if c.retain > 0 {
		if err := c.history.Trim(ctx, c.retain); err != nil {
			return fmt.Errorf("moderation: trim history: %w", err)
		}
	}

	payload, err := protocol.NewServerMessage(protocol.TypeChatMessage, msg)
	if err != nil {
		return fmt.Errorf("moderation: encode notice: %w", err)
	}
	if err := c.bus.BroadcastAll(payload); err != nil {
		return fmt.Errorf("moderation: broadcast notice: %w", err)
	}

	metrics.MessagesTotal.WithLabelValues("system").Inc()
	return nil
}

// durationMillis converts an amount and unit into milliseconds. Minutes is
// the default for unrecognized units.
func durationMillis(amount int, unit string) int64 {
	switch unit {
	case "seconds":
		return int64(amount) * 1000
	case "hours":
		return int64(amount) * 60 * 60 * 1000
	default:
		return int64(amount) * 60 * 1000
	}
}

// normalizeUnit echoes the unit the way it will be applied, so notices match
// the actual suspension length.
func normalizeUnit(unit string) string {
	switch unit {
	case "seconds", "hours":
		return unit
	default:
		return "minutes"
	}
}
