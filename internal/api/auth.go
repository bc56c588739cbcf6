package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bluele/gcache"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// maxPendingTickets bounds the ticket cache; the oldest are evicted first.
const maxPendingTickets = 256

// errTokenInvalid is wrapped by every token parse failure.
var errTokenInvalid = errors.New("api: invalid token")

// parseToken validates an HS256 token and returns its registered claims.
// The subject is required.
func parseToken(tokenString, secret string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTokenInvalid, err)
	}
	if !token.Valid {
		return nil, errTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", errTokenInvalid)
	}
	return claims, nil
}

// ticketStore holds pending WebSocket tickets. Tickets are single-use and
// expire after ticketTTL.
type ticketStore struct {
	cache gcache.Cache
}

func newTicketStore() *ticketStore {
	return &ticketStore{
		cache: gcache.New(maxPendingTickets).LRU().Expiration(ticketTTL).Build(),
	}
}

// issue creates a ticket for subject.
func (t *ticketStore) issue(subject string) (string, error) {
	ticket := uuid.NewString()
	if err := t.cache.Set(ticket, subject); err != nil {
		return "", fmt.Errorf("storing ticket: %w", err)
	}
	return ticket, nil
}

// redeem consumes a ticket and returns its subject.
func (t *ticketStore) redeem(ticket string) (string, bool) {
	v, err := t.cache.Get(ticket)
	if err != nil {
		return "", false
	}
	// Remove reports false when a concurrent redeem won.
	if !t.cache.Remove(ticket) {
		return "", false
	}
	subject, _ := v.(string)
	return subject, true
}

// handleWSTicket issues a single-use WebSocket ticket to an authenticated
// caller.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	subject, _ := r.Context().Value(ctxKeySubject).(string)
	if subject == "" {
		subject = "anonymous"
	}

	ticket, err := s.tickets.issue(subject)
	if err != nil {
		s.logger.Error("issuing websocket ticket failed", "error", err)
		fail(w, http.StatusInternalServerError, "failed to issue ticket")
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}
