package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

// ErrAuth marks a login/credential rejection. Unlike a transport drop it is
// a fatal configuration problem and must not trigger reconnect cycling.
var ErrAuth = errors.New("mailbox authentication failed")

// ErrMessageGone marks an on-demand fetch whose source message has been
// deleted or moved since ingestion.
var ErrMessageGone = errors.New("message no longer present in mailbox")

// Client is the narrow mail-protocol surface the monitor depends on. The
// production implementation wraps go-imap; tests feed synthetic events
// through a fake.
type Client interface {
	// Connect dials, authenticates, and opens the configured folder.
	Connect(ctx context.Context) error
	// SearchUnseen returns the UIDs of messages not yet marked seen.
	SearchUnseen(ctx context.Context) ([]uint32, error)
	// FetchRaw returns the full source of one message without touching
	// its seen flag.
	FetchRaw(ctx context.Context, uid uint32) ([]byte, time.Time, error)
	// MarkSeen flags a message seen. Called only after successful
	// downstream persistence.
	MarkSeen(ctx context.Context, uid uint32) error
	// SearchHeader locates messages by a header field, e.g. Message-Id.
	SearchHeader(ctx context.Context, key, value string) ([]uint32, error)
	// Logout ends the session.
	Logout() error
}

// ClientFactory builds a client for one tenant's mailbox settings.
type ClientFactory func(settings domain.MailboxSettings) Client

type imapSession struct {
	settings    domain.MailboxSettings
	dialTimeout time.Duration
	client      *imapclient.Client
}

// NewIMAPClient returns the production ClientFactory.
func NewIMAPClient(dialTimeout time.Duration) ClientFactory {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return func(settings domain.MailboxSettings) Client {
		return &imapSession{settings: settings, dialTimeout: dialTimeout}
	}
}

func (s *imapSession) Connect(ctx context.Context) error {
	if err := s.settings.Validate(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.settings.Host, s.settings.Port)
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: s.dialTimeout}}

	var client *imapclient.Client
	var err error
	if s.settings.TLS {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return fmt.Errorf("imap dial %s: %w", addr, err)
	}

	if err := client.Login(s.settings.Username, s.settings.Password).Wait(); err != nil {
		_ = client.Close()
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	folder := s.settings.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := client.Select(folder, nil).Wait(); err != nil {
		_ = client.Close()
		return fmt.Errorf("imap select %s: %w", folder, err)
	}

	s.client = client
	return nil
}

func (s *imapSession) SearchUnseen(ctx context.Context) ([]uint32, error) {
	if s.client == nil {
		return nil, errors.New("imap session not connected")
	}

	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search unseen: %w", err)
	}

	uids := data.AllUIDs()
	out := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		out = append(out, uint32(uid))
	}
	return out, nil
}

func (s *imapSession) FetchRaw(ctx context.Context, uid uint32) ([]byte, time.Time, error) {
	if s.client == nil {
		return nil, time.Time{}, errors.New("imap session not connected")
	}

	uidSet := imap.UIDSetNum(imap.UID(uid))
	fetchOpts := &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{{}},
	}
	buffers, err := s.client.Fetch(uidSet, fetchOpts).Collect()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("imap fetch uid %d: %w", uid, err)
	}
	if len(buffers) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: uid %d", ErrMessageGone, uid)
	}

	body := buffers[0].FindBodySection(&imap.FetchItemBodySection{})
	if body == nil {
		return nil, time.Time{}, fmt.Errorf("%w: uid %d has no body section", ErrMessageGone, uid)
	}
	return append([]byte(nil), body...), buffers[0].InternalDate, nil
}

func (s *imapSession) MarkSeen(ctx context.Context, uid uint32) error {
	if s.client == nil {
		return errors.New("imap session not connected")
	}

	uidSet := imap.UIDSetNum(imap.UID(uid))
	store := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Flags: []imap.Flag{imap.FlagSeen}}
	if err := s.client.Store(uidSet, store, nil).Close(); err != nil {
		return fmt.Errorf("imap mark seen uid %d: %w", uid, err)
	}
	return nil
}

func (s *imapSession) SearchHeader(ctx context.Context, key, value string) ([]uint32, error) {
	if s.client == nil {
		return nil, errors.New("imap session not connected")
	}

	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: key, Value: value}},
	}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search header %s: %w", key, err)
	}

	uids := data.AllUIDs()
	out := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		out = append(out, uint32(uid))
	}
	return out, nil
}

func (s *imapSession) Logout() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Logout().Wait()
	s.client = nil
	return err
}
