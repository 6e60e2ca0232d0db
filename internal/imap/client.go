package imap

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"github.com/ternmail/tern/internal/mail"
	"github.com/ternmail/tern/internal/status"
)

// maxTryCount bounds how often a request hit by a connection-level failure
// is requeued before a failed response is delivered.
const maxTryCount = 3

// Config holds the connection settings for the engine.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	// FoldersExclude lists folders skipped by folder-list fetches and search.
	FoldersExclude []string
}

// Client implements Engine over go-imap. All protocol work happens on one
// worker goroutine; handlers are invoked from it.
type Client struct {
	cfg      Config
	machine  *status.Machine
	log      *zap.Logger
	handlers Handlers

	mu       sync.Mutex
	cond     *sync.Cond
	requests []Request
	prefetch map[PrefetchLevel][]Request
	actions  []Action
	searches []SearchQuery
	running  bool

	done chan struct{}

	cli      *imapclient.Client
	selected string
}

// NewClient creates an engine client. Handlers must be set before Start.
func NewClient(cfg Config, machine *status.Machine, log *zap.Logger) *Client {
	c := &Client{
		cfg:      cfg,
		machine:  machine,
		log:      log,
		prefetch: make(map[PrefetchLevel][]Request),
		done:     make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// SetHandlers registers the response callbacks.
func (c *Client) SetHandlers(h Handlers) {
	c.handlers = h
}

// Start launches the worker goroutine.
func (c *Client) Start() {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	go c.process()
}

// Stop drains nothing: queued requests are abandoned, the connection is
// closed and the worker exits.
func (c *Client) Stop() {
	c.mu.Lock()
	c.running = false
	c.cond.Broadcast()
	c.mu.Unlock()
	<-c.done
}

// AsyncRequest enqueues an on-demand fetch.
func (c *Client) AsyncRequest(req Request) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.cond.Broadcast()
	c.mu.Unlock()
}

// PrefetchRequest enqueues a background fetch. Prefetch traffic is only
// processed when no on-demand work is queued.
func (c *Client) PrefetchRequest(req Request) {
	c.mu.Lock()
	c.prefetch[req.PrefetchLevel] = append(c.prefetch[req.PrefetchLevel], req)
	c.cond.Broadcast()
	c.mu.Unlock()
}

// AsyncAction enqueues a mutating operation. Actions run before fetches so
// user-visible mutations are not starved by prefetch storms.
func (c *Client) AsyncAction(action Action) {
	c.mu.Lock()
	c.actions = append(c.actions, action)
	c.cond.Broadcast()
	c.mu.Unlock()
}

// AsyncSearch enqueues one search page.
func (c *Client) AsyncSearch(q SearchQuery) {
	c.mu.Lock()
	c.searches = append(c.searches, q)
	c.cond.Broadcast()
	c.mu.Unlock()
}

type work struct {
	request *Request
	action  *Action
	search  *SearchQuery
}

func (c *Client) next() (work, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if !c.running {
			return work{}, false
		}
		if len(c.actions) > 0 {
			a := c.actions[0]
			c.actions = c.actions[1:]
			return work{action: &a}, true
		}
		if len(c.requests) > 0 {
			r := c.requests[0]
			c.requests = c.requests[1:]
			return work{request: &r}, true
		}
		if len(c.searches) > 0 {
			q := c.searches[0]
			c.searches = c.searches[1:]
			return work{search: &q}, true
		}
		for _, level := range []PrefetchLevel{LevelCurrentMessage, LevelCurrentView, LevelFullSync} {
			if queue := c.prefetch[level]; len(queue) > 0 {
				r := queue[0]
				c.prefetch[level] = queue[1:]
				return work{request: &r}, true
			}
		}
		c.cond.Wait()
	}
}

func (c *Client) process() {
	defer close(c.done)
	defer c.disconnect()

	for {
		w, ok := c.next()
		if !ok {
			return
		}
		switch {
		case w.request != nil:
			c.machine.SetLine("%s", activityLine(*w.request))
			c.handleRequest(*w.request)
		case w.action != nil:
			c.machine.SetLine("updating %s", w.action.Folder)
			result := Result{Success: c.performAction(*w.action) == nil}
			if c.handlers.OnResult != nil {
				c.handlers.OnResult(*w.action, result)
			}
		case w.search != nil:
			c.machine.SetLine("searching %q", w.search.Text)
			res := c.performSearch(*w.search)
			if c.handlers.OnSearchResult != nil {
				c.handlers.OnSearchResult(*w.search, res)
			}
		}
		c.machine.ClearLine()
	}
}

func (c *Client) handleRequest(req Request) {
	resp, retryable := c.performRequest(req)
	if resp.Status != StatusOK && retryable && req.TryCount+1 < maxTryCount {
		req.TryCount++
		c.mu.Lock()
		if req.PrefetchLevel == LevelNone {
			c.requests = append(c.requests, req)
		} else {
			c.prefetch[req.PrefetchLevel] = append(c.prefetch[req.PrefetchLevel], req)
		}
		c.cond.Broadcast()
		c.mu.Unlock()
		return
	}
	if c.handlers.OnResponse != nil {
		c.handlers.OnResponse(req, resp)
	}
}

func (c *Client) ensureConnected() error {
	if c.cli != nil {
		return nil
	}
	if cur := c.machine.Current(); cur == status.Offline || cur == status.AuthFailed {
		_ = c.machine.Transition(status.Connecting)
	}
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	cli, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		_ = c.machine.Transition(status.Offline)
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := cli.Login(c.cfg.User, c.cfg.Password).Wait(); err != nil {
		_ = cli.Logout().Wait()
		_ = c.machine.Transition(status.AuthFailed)
		return fmt.Errorf("login %s: %w", c.cfg.User, errLogin{err})
	}
	c.cli = cli
	c.selected = ""
	_ = c.machine.Transition(status.Connected)
	c.log.Info("imap connected", zap.String("host", c.cfg.Host))
	return nil
}

type errLogin struct{ err error }

func (e errLogin) Error() string { return e.err.Error() }
func (e errLogin) Unwrap() error { return e.err }

func isLoginErr(err error) bool {
	var le errLogin
	return errors.As(err, &le)
}

// dropConnection tears the session down after a protocol failure so the next
// piece of work reconnects from scratch.
func (c *Client) dropConnection() {
	if c.cli != nil {
		_ = c.cli.Close()
		c.cli = nil
		c.selected = ""
	}
	if c.machine.Current() == status.Connected {
		_ = c.machine.Transition(status.Offline)
	}
	time.Sleep(time.Second)
}

func (c *Client) disconnect() {
	if c.cli != nil {
		_ = c.cli.Logout().Wait()
		c.cli = nil
	}
}

func (c *Client) selectFolder(folder string) error {
	if c.selected == folder {
		return nil
	}
	if _, err := c.cli.Select(folder, nil).Wait(); err != nil {
		return fmt.Errorf("select %q: %w", folder, err)
	}
	c.selected = folder
	return nil
}

// performRequest executes one request. The second return value reports
// whether a failure was connection-level and the request is worth requeuing.
func (c *Client) performRequest(req Request) (Response, bool) {
	resp := Response{Folder: req.Folder}

	if err := c.ensureConnected(); err != nil {
		c.log.Warn("connect failed", zap.Error(err))
		resp.Status = c.failAll(req)
		if isLoginErr(err) {
			resp.Status |= StatusLoginFailed
			return resp, false
		}
		return resp, true
	}

	if req.GetFolders {
		folders, err := c.listFolders()
		if err != nil {
			c.log.Warn("list folders failed", zap.Error(err))
			resp.Status |= StatusGetFoldersFailed
			c.dropConnection()
			return resp, true
		}
		resp.Folders = folders
	}

	if req.GetUids {
		uids, err := c.fetchUids(req.Folder)
		if err != nil {
			c.log.Warn("fetch uids failed", zap.String("folder", req.Folder), zap.Error(err))
			resp.Status |= StatusGetUidsFailed
			c.dropConnection()
			return resp, true
		}
		resp.Uids = uids
	}

	if len(req.GetHeaders) > 0 {
		headers, err := c.fetchHeaders(req.Folder, req.GetHeaders)
		if err != nil {
			c.log.Warn("fetch headers failed", zap.String("folder", req.Folder), zap.Error(err))
			resp.Status |= StatusGetHeadersFailed
			c.dropConnection()
			return resp, true
		}
		resp.Headers = headers
	}

	if len(req.GetFlags) > 0 {
		flags, err := c.fetchFlags(req.Folder, req.GetFlags)
		if err != nil {
			c.log.Warn("fetch flags failed", zap.String("folder", req.Folder), zap.Error(err))
			resp.Status |= StatusGetFlagsFailed
			c.dropConnection()
			return resp, true
		}
		resp.Flags = flags
	}

	if len(req.GetBodies) > 0 {
		bodies, err := c.fetchBodies(req.Folder, req.GetBodies)
		if err != nil {
			c.log.Warn("fetch bodies failed", zap.String("folder", req.Folder), zap.Error(err))
			resp.Status |= StatusGetBodiesFailed
			c.dropConnection()
			return resp, true
		}
		resp.Bodies = bodies
	}

	return resp, false
}

func (c *Client) failAll(req Request) RespStatus {
	var st RespStatus
	if req.GetFolders {
		st |= StatusGetFoldersFailed
	}
	if req.GetUids {
		st |= StatusGetUidsFailed
	}
	if len(req.GetHeaders) > 0 {
		st |= StatusGetHeadersFailed
	}
	if len(req.GetFlags) > 0 {
		st |= StatusGetFlagsFailed
	}
	if len(req.GetBodies) > 0 {
		st |= StatusGetBodiesFailed
	}
	return st
}

func (c *Client) listFolders() ([]string, error) {
	listCmd := c.cli.List("", "*", nil)
	data, err := listCmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	excluded := make(map[string]struct{}, len(c.cfg.FoldersExclude))
	for _, f := range c.cfg.FoldersExclude {
		excluded[f] = struct{}{}
	}
	var folders []string
	for _, d := range data {
		if _, skip := excluded[d.Mailbox]; skip {
			continue
		}
		folders = append(folders, d.Mailbox)
	}
	sort.Strings(folders)
	return folders, nil
}

func (c *Client) fetchUids(folder string) ([]mail.UID, error) {
	if err := c.selectFolder(folder); err != nil {
		return nil, err
	}
	data, err := c.cli.UIDSearch(&goimap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}
	raw := data.AllUIDs()
	uids := make([]mail.UID, 0, len(raw))
	for _, uid := range raw {
		uids = append(uids, mail.UID(uid))
	}
	return uids, nil
}

func (c *Client) fetchHeaders(folder string, uids []mail.UID) (map[mail.UID]*mail.Header, error) {
	if err := c.selectFolder(folder); err != nil {
		return nil, err
	}
	opts := &goimap.FetchOptions{
		UID:           true,
		Envelope:      true,
		BodyStructure: &goimap.FetchItemBodyStructure{Extended: true},
	}
	bufs, err := c.cli.Fetch(uidSet(uids), opts).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch envelopes: %w", err)
	}
	headers := make(map[mail.UID]*mail.Header, len(bufs))
	for _, buf := range bufs {
		if buf.UID == 0 {
			continue
		}
		headers[mail.UID(buf.UID)] = headerFromBuffer(buf)
	}
	return headers, nil
}

func (c *Client) fetchFlags(folder string, uids []mail.UID) (map[mail.UID]mail.Flags, error) {
	if err := c.selectFolder(folder); err != nil {
		return nil, err
	}
	opts := &goimap.FetchOptions{UID: true, Flags: true}
	bufs, err := c.cli.Fetch(uidSet(uids), opts).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch flags: %w", err)
	}
	flags := make(map[mail.UID]mail.Flags, len(bufs))
	for _, buf := range bufs {
		if buf.UID == 0 {
			continue
		}
		flags[mail.UID(buf.UID)] = flagsFromList(buf.Flags)
	}
	return flags, nil
}

func (c *Client) fetchBodies(folder string, uids []mail.UID) (map[mail.UID]*mail.Body, error) {
	if err := c.selectFolder(folder); err != nil {
		return nil, err
	}
	section := &goimap.FetchItemBodySection{Peek: true}
	opts := &goimap.FetchOptions{
		UID:         true,
		BodySection: []*goimap.FetchItemBodySection{section},
	}
	bufs, err := c.cli.Fetch(uidSet(uids), opts).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch bodies: %w", err)
	}
	bodies := make(map[mail.UID]*mail.Body, len(bufs))
	for _, buf := range bufs {
		raw := buf.FindBodySection(section)
		if buf.UID == 0 || raw == nil {
			continue
		}
		body, err := mail.ParseBody(raw)
		if err != nil {
			c.log.Warn("parse body failed", zap.Uint32("uid", uint32(buf.UID)), zap.Error(err))
			continue
		}
		bodies[mail.UID(buf.UID)] = body
	}
	return bodies, nil
}

func (c *Client) performAction(a Action) error {
	if err := c.ensureConnected(); err != nil {
		c.log.Warn("action connect failed", zap.Error(err))
		return err
	}

	switch {
	case a.UploadDraft, a.UploadMessage:
		return c.append(a.Folder, a.Msg, a.UploadDraft)
	default:
		if err := c.selectFolder(a.Folder); err != nil {
			return err
		}
	}

	set := uidSet(a.UIDs)
	switch {
	case a.MoveDestination != "":
		if _, err := c.cli.Move(set, a.MoveDestination).Wait(); err != nil {
			return fmt.Errorf("move to %q: %w", a.MoveDestination, err)
		}
	case a.SetSeen:
		return c.storeFlags(set, goimap.StoreFlagsAdd, goimap.FlagSeen)
	case a.SetUnseen:
		return c.storeFlags(set, goimap.StoreFlagsDel, goimap.FlagSeen)
	case a.DeleteMessages:
		if err := c.storeFlags(set, goimap.StoreFlagsAdd, goimap.FlagDeleted); err != nil {
			return err
		}
		if err := c.cli.Expunge().Close(); err != nil {
			return fmt.Errorf("expunge: %w", err)
		}
	}
	return nil
}

func (c *Client) storeFlags(set goimap.UIDSet, op goimap.StoreFlagsOp, flag goimap.Flag) error {
	cmd := c.cli.Store(set, &goimap.StoreFlags{Op: op, Silent: true, Flags: []goimap.Flag{flag}}, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("store flags: %w", err)
	}
	return nil
}

func (c *Client) append(folder string, msg []byte, draft bool) error {
	opts := &goimap.AppendOptions{}
	if draft {
		opts.Flags = []goimap.Flag{goimap.FlagDraft}
	}
	cmd := c.cli.Append(folder, int64(len(msg)), opts)
	if _, err := cmd.Write(msg); err != nil {
		_ = cmd.Close()
		return fmt.Errorf("append write: %w", err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	return nil
}

// performSearch walks all folders, collects matching UIDs newest-first per
// folder, and serves the [Offset, Offset+Max) window of the flattened match
// list with headers attached.
func (c *Client) performSearch(q SearchQuery) SearchResult {
	var res SearchResult
	if err := c.ensureConnected(); err != nil {
		c.log.Warn("search connect failed", zap.Error(err))
		return res
	}
	folders, err := c.listFolders()
	if err != nil {
		c.log.Warn("search list folders failed", zap.Error(err))
		return res
	}

	var matches []FolderUID
	criteria := &goimap.SearchCriteria{Text: []string{q.Text}}
	for _, folder := range folders {
		if err := c.selectFolder(folder); err != nil {
			continue
		}
		data, err := c.cli.UIDSearch(criteria, nil).Wait()
		if err != nil {
			c.log.Warn("search failed", zap.String("folder", folder), zap.Error(err))
			continue
		}
		uids := data.AllUIDs()
		for i := len(uids) - 1; i >= 0; i-- {
			matches = append(matches, FolderUID{Folder: folder, UID: mail.UID(uids[i])})
		}
	}

	if q.Offset >= len(matches) {
		return res
	}
	end := q.Offset + q.Max
	if q.Max == 0 || end > len(matches) {
		end = len(matches)
	}
	window := matches[q.Offset:end]
	res.HasMore = end < len(matches)

	for _, m := range window {
		headers, err := c.fetchHeaders(m.Folder, []mail.UID{m.UID})
		if err != nil {
			c.log.Warn("search header fetch failed", zap.String("folder", m.Folder), zap.Error(err))
			continue
		}
		hdr, ok := headers[m.UID]
		if !ok {
			continue
		}
		res.FolderUids = append(res.FolderUids, m)
		res.Headers = append(res.Headers, hdr)
	}
	return res
}

func activityLine(req Request) string {
	switch {
	case req.GetFolders:
		return "fetching folders"
	case req.GetUids:
		return "fetching uids in " + req.Folder
	case len(req.GetBodies) > 0:
		return fmt.Sprintf("fetching %d bodies in %s", len(req.GetBodies), req.Folder)
	case len(req.GetHeaders) > 0:
		return fmt.Sprintf("fetching %d headers in %s", len(req.GetHeaders), req.Folder)
	case len(req.GetFlags) > 0:
		return fmt.Sprintf("fetching flags in %s", req.Folder)
	}
	return "fetching"
}

func uidSet(uids []mail.UID) goimap.UIDSet {
	raw := make([]goimap.UID, 0, len(uids))
	for _, uid := range uids {
		raw = append(raw, goimap.UID(uid))
	}
	return goimap.UIDSetNum(raw...)
}

func flagsFromList(list []goimap.Flag) mail.Flags {
	var f mail.Flags
	for _, fl := range list {
		switch fl {
		case goimap.FlagSeen:
			f |= mail.FlagSeen
		case goimap.FlagAnswered:
			f |= mail.FlagAnswered
		case goimap.FlagFlagged:
			f |= mail.FlagFlagged
		case goimap.FlagDeleted:
			f |= mail.FlagDeleted
		case goimap.FlagDraft:
			f |= mail.FlagDraft
		}
	}
	return f
}

func headerFromBuffer(buf *imapclient.FetchMessageBuffer) *mail.Header {
	hdr := &mail.Header{}
	if env := buf.Envelope; env != nil {
		hdr.Subject = env.Subject
		hdr.Date = env.Date
		hdr.MessageID = env.MessageID
		hdr.From = joinAddrs(env.From)
		hdr.To = joinAddrs(env.To)
		hdr.Cc = joinAddrs(env.Cc)
		hdr.Bcc = joinAddrs(env.Bcc)
	}
	if buf.BodyStructure != nil {
		hdr.HasAttachments = hasAttachments(buf.BodyStructure)
	}
	return hdr
}

func joinAddrs(addrs []goimap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.Name, a.Addr()))
		} else {
			parts = append(parts, a.Addr())
		}
	}
	return strings.Join(parts, ", ")
}

func hasAttachments(bs goimap.BodyStructure) bool {
	switch p := bs.(type) {
	case *goimap.BodyStructureSinglePart:
		if p.Extended != nil && p.Extended.Disposition != nil &&
			strings.EqualFold(p.Extended.Disposition.Value, "attachment") {
			return true
		}
	case *goimap.BodyStructureMultiPart:
		for _, child := range p.Children {
			if hasAttachments(child) {
				return true
			}
		}
	}
	return false
}
