// Package gate runs the caller-side control flow for each audited action:
// firewall admission, intrusion evaluation, the domain step, then the audit record.
//
// Denials are returned as Results with generic messages. The audit trail keeps the
// detail.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vaibhaw-/snapguard/internal/snapguard/apperr"
	"github.com/vaibhaw-/snapguard/internal/snapguard/audit"
	"github.com/vaibhaw-/snapguard/internal/snapguard/crypto"
	"github.com/vaibhaw-/snapguard/internal/snapguard/firewall"
	"github.com/vaibhaw-/snapguard/internal/snapguard/intrusion"
	"github.com/vaibhaw-/snapguard/internal/snapguard/ledger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/logger"
	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
	"github.com/vaibhaw-/snapguard/internal/snapguard/store"
)

// User-facing denial messages.
const (
	MsgAccessDenied       = "access denied"
	MsgInvalidCredentials = "invalid credentials"
	MsgTooManyRequests    = "too many requests"
	MsgUnavailable        = "service temporarily unavailable"
	MsgVerification       = "additional verification required"
	MsgUsernameTaken      = "username unavailable"
	MsgInvalidRequest     = "invalid request"
)

// Reasons set on denied Results, beyond the firewall's own.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonIntrusion          = "intrusion"
	ReasonVerification       = "verification_required"
	ReasonInvalid            = "invalid"
	ReasonConflict           = "conflict"
)

// Activities reported to the intrusion detector.
const (
	ActivityLogin      = "login"
	ActivityRegister   = "register"
	ActivityPermission = "permission_request"
	ActivityMessage    = "message_send"
	ActivityFileShare  = "file_share"
)

const minPasswordLen = 8

// Score penalties applied when a login is assessed high or critical.
const (
	penaltyHigh     = 10
	penaltyCritical = 25
)

type Result struct {
	OK         bool                  `json:"ok"`
	Reason     string                `json:"reason,omitempty"`
	Message    string                `json:"message,omitempty"`
	UserID     string                `json:"user_id,omitempty"`
	TxHash     string                `json:"tx_hash,omitempty"`
	MessageID  string                `json:"message_id,omitempty"`
	Ciphertext string                `json:"ciphertext,omitempty"`
	Assessment *intrusion.Assessment `json:"assessment,omitempty"`
}

func deny(reason, msg string) Result { return Result{Reason: reason, Message: msg} }

type Deps struct {
	Users     store.UserStore
	Audit     *audit.Service
	Firewall  *firewall.Guard
	Intrusion *intrusion.Detector
	Cipher    *crypto.Cipher

	// LockdownOnTamper engages the firewall lockdown when IntegrityCheck finds damage.
	LockdownOnTamper bool
	Now              func() time.Time
}

type Gate struct {
	d Deps
}

func New(d Deps) (*Gate, error) {
	switch {
	case d.Users == nil:
		return nil, apperr.Configuration("gate: user store is required")
	case d.Audit == nil:
		return nil, apperr.Configuration("gate: audit service is required")
	case d.Firewall == nil:
		return nil, apperr.Configuration("gate: firewall is required")
	case d.Intrusion == nil:
		return nil, apperr.Configuration("gate: intrusion detector is required")
	case d.Cipher == nil:
		return nil, apperr.Configuration("gate: cipher is required")
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Gate{d: d}, nil
}

func (g *Gate) Audit() *audit.Service         { return g.d.Audit }
func (g *Gate) Firewall() *firewall.Guard     { return g.d.Firewall }
func (g *Gate) Detector() *intrusion.Detector { return g.d.Intrusion }

func admitDenial(d firewall.Decision) Result {
	switch d.Reason {
	case firewall.ReasonRateLimited:
		return deny(string(d.Reason), MsgTooManyRequests)
	case firewall.ReasonLockdown:
		return deny(string(d.Reason), MsgUnavailable)
	default:
		return deny(string(d.Reason), MsgAccessDenied)
	}
}

// enforce executes the detector's decision. It returns a denial when the action
// stops the request.
func (g *Gate) enforce(ctx context.Context, a intrusion.Assessment, subject, ip string) (*Result, error) {
	switch a.Action {
	case intrusion.ActionBlockUser:
		if err := g.d.Firewall.Block(ctx, ip, "intrusion: "+strings.Join(a.Signals, ","), subject); err != nil {
			return nil, err
		}
		r := deny(ReasonIntrusion, MsgAccessDenied)
		r.Assessment = &a
		return &r, nil
	case intrusion.ActionRequireVerification:
		r := deny(ReasonVerification, MsgVerification)
		r.Assessment = &a
		return &r, nil
	}
	return nil, nil
}

// Register creates the user, attaches fresh key material and appends a
// user_registration transaction.
func (g *Gate) Register(ctx context.Context, username, password, ip string) (Result, error) {
	username = strings.TrimSpace(username)
	dec, err := g.d.Firewall.Admit(ctx, username, ip)
	if err != nil {
		return Result{}, err
	}
	if !dec.Allowed {
		return admitDenial(dec), nil
	}
	if username == "" || len(password) < minPasswordLen {
		return deny(ReasonInvalid, MsgInvalidRequest), nil
	}

	a, err := g.d.Intrusion.Evaluate(ctx, username, ActivityRegister, nil)
	if err != nil {
		return Result{}, err
	}
	if r, err := g.enforce(ctx, a, username, ip); r != nil || err != nil {
		return derefOrEmpty(r), err
	}

	if _, err := g.d.Users.GetByUsername(ctx, username); err == nil {
		return deny(ReasonConflict, MsgUsernameTaken), nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return Result{}, apperr.Unavailable("users.get", err)
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return Result{}, err
	}
	now := g.d.Now()
	u, err := g.d.Users.Create(ctx, &models.User{
		ID:            uuid.NewString(),
		Username:      username,
		PasswordHash:  hash,
		SecurityScore: models.DefaultSecurityScore,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if errors.Is(err, apperr.ErrConflict) {
		// Lost a race with a concurrent registration of the same name.
		return deny(ReasonConflict, MsgUsernameTaken), nil
	}
	if err != nil {
		return Result{}, apperr.Unavailable("users.create", err)
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return Result{}, err
	}
	encPriv, err := g.d.Cipher.Encrypt([]byte(kp.PrivateKey))
	if err != nil {
		return Result{}, err
	}
	if _, err := g.d.Users.Update(ctx, u.ID, models.UserUpdate{
		PublicKey:           &kp.PublicKey,
		EncryptedPrivateKey: &encPriv,
	}); err != nil {
		return Result{}, apperr.Unavailable("users.update", err)
	}

	txHash, err := g.d.Audit.RecordTx(ctx, models.TxUserRegistration, u.ID, map[string]any{
		"username":             username,
		"publicKeyFingerprint": kp.Fingerprint(),
	})
	if err != nil {
		return Result{}, err
	}
	if _, err := g.d.Audit.Record(ctx, u.ID, models.EventUserRegistered,
		fmt.Sprintf("user %s registered", username), models.RiskLow); err != nil {
		return Result{OK: true, UserID: u.ID, TxHash: txHash}, err
	}

	logger.L().Infow("gate.register", "user", u.ID, "tx_hash", txHash)
	return Result{OK: true, UserID: u.ID, TxHash: txHash}, nil
}

// Login checks credentials behind the firewall. Failures count toward the lockout
// of (username, ip); success clears the counter.
func (g *Gate) Login(ctx context.Context, username, password, ip string) (Result, error) {
	log := logger.L()
	dec, err := g.d.Firewall.Admit(ctx, username, ip)
	if err != nil {
		return Result{}, err
	}
	if !dec.Allowed {
		return admitDenial(dec), nil
	}

	a, err := g.d.Intrusion.Evaluate(ctx, username, ActivityLogin, nil)
	if err != nil {
		return Result{}, err
	}

	u, err := g.d.Users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return Result{}, apperr.Unavailable("users.get", err)
	}
	if u != nil && a.Level.Risk().IsAnomaly() {
		g.penalize(ctx, u, a.Level)
	}
	if r, err := g.enforce(ctx, a, username, ip); r != nil || err != nil {
		return derefOrEmpty(r), err
	}

	ok := false
	if u != nil {
		ok, err = crypto.VerifyPassword(password, u.PasswordHash)
		if err != nil {
			log.Warnw("gate.login: unreadable password hash", "user", u.ID, "err", err)
			ok = false
		}
	}
	if !ok {
		blocked, err := g.d.Firewall.RecordFailedAttempt(ctx, username, ip)
		if err != nil {
			return Result{}, err
		}
		if blocked {
			return deny(string(firewall.ReasonBlocked), MsgInvalidCredentials), nil
		}
		return deny(ReasonInvalidCredentials, MsgInvalidCredentials), nil
	}

	g.d.Firewall.ClearFailedAttempts(username, ip)
	txHash, err := g.d.Audit.RecordTx(ctx, models.TxUserLogin, u.ID, map[string]any{
		"username": u.Username,
		"ip":       ip,
	})
	if err != nil {
		return Result{}, err
	}
	if _, err := g.d.Audit.Record(ctx, u.ID, models.EventLoginSuccess,
		fmt.Sprintf("login from %s", ip), models.RiskLow); err != nil {
		return Result{OK: true, UserID: u.ID, TxHash: txHash}, err
	}
	return Result{OK: true, UserID: u.ID, TxHash: txHash, Assessment: &a}, nil
}

func (g *Gate) penalize(ctx context.Context, u *models.User, level intrusion.Level) {
	p := penaltyHigh
	if level == intrusion.LevelCritical {
		p = penaltyCritical
	}
	score := max(u.SecurityScore-p, 0)
	if _, err := g.d.Users.Update(ctx, u.ID, models.UserUpdate{SecurityScore: &score}); err != nil {
		logger.L().Warnw("gate.penalize: update failed", "user", u.ID, "err", err)
		return
	}
	u.SecurityScore = score
}

// RequestPermission grants a device permission after an intrusion check.
func (g *Gate) RequestPermission(ctx context.Context, userID, permission, ip string, metadata map[string]any) (Result, error) {
	dec, err := g.d.Firewall.Admit(ctx, userID, ip)
	if err != nil {
		return Result{}, err
	}
	if !dec.Allowed {
		return admitDenial(dec), nil
	}
	perm, err := models.ParsePermissionType(permission)
	if err != nil {
		return deny(ReasonInvalid, MsgInvalidRequest), nil
	}
	if _, err := g.d.Users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return deny(ReasonInvalid, MsgAccessDenied), nil
		}
		return Result{}, apperr.Unavailable("users.get", err)
	}

	a, err := g.d.Intrusion.Evaluate(ctx, userID, ActivityPermission, metadata)
	if err != nil {
		return Result{}, err
	}
	if r, err := g.enforce(ctx, a, userID, ip); r != nil || err != nil {
		return derefOrEmpty(r), err
	}

	txHash, err := g.d.Audit.RecordTx(ctx, models.TxPermissionGranted, userID, map[string]any{
		"permissionType": string(perm),
	})
	if err != nil {
		return Result{}, err
	}
	risk := models.RiskLow
	if a.Threat {
		risk = a.Level.Risk()
	}
	if _, err := g.d.Audit.Record(ctx, userID, models.EventPermissionGranted,
		fmt.Sprintf("%s permission granted", perm), risk); err != nil {
		return Result{OK: true, UserID: userID, TxHash: txHash}, err
	}
	return Result{OK: true, UserID: userID, TxHash: txHash, Assessment: &a}, nil
}

// SendMessage encrypts content for transport and records a message_sent
// transaction carrying only the content hash and size.
func (g *Gate) SendMessage(ctx context.Context, senderID, recipientID, ip, content string, metadata map[string]any) (Result, error) {
	dec, err := g.d.Firewall.Admit(ctx, senderID, ip)
	if err != nil {
		return Result{}, err
	}
	if !dec.Allowed {
		return admitDenial(dec), nil
	}
	if recipientID == "" || content == "" {
		return deny(ReasonInvalid, MsgInvalidRequest), nil
	}
	for _, id := range []string{senderID, recipientID} {
		if _, err := g.d.Users.GetByID(ctx, id); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return deny(ReasonInvalid, MsgAccessDenied), nil
			}
			return Result{}, apperr.Unavailable("users.get", err)
		}
	}

	activity := ActivityMessage
	if v, _ := metadata["attachment"].(bool); v {
		activity = ActivityFileShare
	}
	a, err := g.d.Intrusion.Evaluate(ctx, senderID, activity, metadata)
	if err != nil {
		return Result{}, err
	}
	if r, err := g.enforce(ctx, a, senderID, ip); r != nil || err != nil {
		return derefOrEmpty(r), err
	}

	ct, err := g.d.Cipher.Encrypt([]byte(content))
	if err != nil {
		return Result{}, err
	}
	msgID := uuid.NewString()
	txHash, err := g.d.Audit.RecordTx(ctx, models.TxMessageSent, senderID, map[string]any{
		"messageId":   msgID,
		"recipientId": recipientID,
		"contentHash": crypto.HashString(content),
		"size":        len(content),
	})
	if err != nil {
		return Result{}, err
	}
	return Result{OK: true, UserID: senderID, TxHash: txHash, MessageID: msgID, Ciphertext: ct, Assessment: &a}, nil
}

// IntegrityCheck runs a full chain verification and, when configured, locks the
// firewall down on any damage.
//
// A report comes back with an error when the violation rows could not all be
// written; the lockdown decision still follows the report.
func (g *Gate) IntegrityCheck(ctx context.Context) (*ledger.VerifyReport, error) {
	report, err := g.d.Audit.VerifyAll(ctx)
	if report == nil {
		return nil, err
	}
	if report.Valid || !g.d.LockdownOnTamper {
		return report, err
	}
	reason := fmt.Sprintf("integrity check: %d corrupted, %d broken links, %d missing blocks",
		len(report.CorruptedHashes), len(report.BrokenLinks), len(report.MissingBlocks))
	if lerr := g.d.Firewall.Lockdown(ctx, reason, "system"); lerr != nil {
		return report, errors.Join(err, lerr)
	}
	return report, err
}

// Stats is the combined view served by the CLI and the monitor.
type Stats struct {
	Chain    *audit.ChainStats `json:"chain"`
	Firewall firewall.State    `json:"firewall"`
}

func (g *Gate) Stats(ctx context.Context) (*Stats, error) {
	cs, err := g.d.Audit.ChainStats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Chain: cs, Firewall: g.d.Firewall.Snapshot()}, nil
}

func derefOrEmpty(r *Result) Result {
	if r == nil {
		return Result{}
	}
	return *r
}
