package ssdp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/rs/zerolog"
)

// Listener is notified about changes of the tracked devices. Entries
// passed to it are snapshots. Callbacks run without the tracker's lock
// held.
type Listener interface {
	RootDeviceAdded(root *RootEntry)
	DeviceAdded(root *RootEntry, device *DeviceEntry)
	ServiceAdded(root *RootEntry, device *DeviceEntry, serviceTypeVersionURN string)
	RootDeviceRemoved(root *RootEntry)
	DeviceRebooted(root *RootEntry, configurationChanged bool)
	DeviceConfigurationChanged(root *RootEntry)
}

// ListenerFuncs implements Listener with optional callbacks.
type ListenerFuncs struct {
	OnRootDeviceAdded            func(root *RootEntry)
	OnDeviceAdded                func(root *RootEntry, device *DeviceEntry)
	OnServiceAdded               func(root *RootEntry, device *DeviceEntry, serviceTypeVersionURN string)
	OnRootDeviceRemoved          func(root *RootEntry)
	OnDeviceRebooted             func(root *RootEntry, configurationChanged bool)
	OnDeviceConfigurationChanged func(root *RootEntry)
}

func (l ListenerFuncs) RootDeviceAdded(root *RootEntry) {
	if l.OnRootDeviceAdded != nil {
		l.OnRootDeviceAdded(root)
	}
}

func (l ListenerFuncs) DeviceAdded(root *RootEntry, device *DeviceEntry) {
	if l.OnDeviceAdded != nil {
		l.OnDeviceAdded(root, device)
	}
}

func (l ListenerFuncs) ServiceAdded(root *RootEntry, device *DeviceEntry, urn string) {
	if l.OnServiceAdded != nil {
		l.OnServiceAdded(root, device, urn)
	}
}

func (l ListenerFuncs) RootDeviceRemoved(root *RootEntry) {
	if l.OnRootDeviceRemoved != nil {
		l.OnRootDeviceRemoved(root)
	}
}

func (l ListenerFuncs) DeviceRebooted(root *RootEntry, configurationChanged bool) {
	if l.OnDeviceRebooted != nil {
		l.OnDeviceRebooted(root, configurationChanged)
	}
}

func (l ListenerFuncs) DeviceConfigurationChanged(root *RootEntry) {
	if l.OnDeviceConfigurationChanged != nil {
		l.OnDeviceConfigurationChanged(root)
	}
}

type TrackerOption func(*Tracker)

func WithListener(l Listener) TrackerOption {
	return func(t *Tracker) {
		t.listeners = append(t.listeners, l)
	}
}

func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker owns the root entries. Entries whose root device message has
// not been seen yet are kept pending, they cannot be keyed by root device
// UUID before that.
type Tracker struct {
	mu        sync.Mutex
	entries   map[string]*RootEntry
	pending   []*RootEntry
	listeners []Listener
	now       func() time.Time
}

func NewTracker(opts ...TrackerOption) *Tracker {
	t := Tracker{
		entries: make(map[string]*RootEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&t)
	}
	return &t
}

// HandleAdvertisement processes one SSDP message. Messages that are
// invalid or stale are dropped with an error wrapping
// ErrInvalidAdvertisement.
func (t *Tracker) HandleAdvertisement(ctx context.Context, adv *Advertisement) error {
	var (
		events []func(Listener)
		err    error
	)
	switch adv.NTS {
	case upnp.NTS_Alive:
		events, err = t.handleAlive(adv)
	case upnp.NTS_ByeBye:
		events, err = t.handleByeBye(adv)
	case upnp.NTS_Update:
		events, err = t.handleUpdate(adv)
	default:
		err = fmt.Errorf("%w: NTS %q", ErrInvalidAdvertisement, adv.NTS)
	}
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).
			Str("usn", adv.USN).
			Str("nts", adv.NTS).
			Msg("ignoring SSDP message")
		return err
	}

	t.fire(events)
	return nil
}

func (t *Tracker) fire(events []func(Listener)) {
	for _, event := range events {
		for _, l := range t.listeners {
			event(l)
		}
	}
}

func (t *Tracker) handleAlive(adv *Advertisement) ([]func(Listener), error) {
	bootID, hasBootID, err := adv.uint32Header(HeaderBootID)
	if err != nil {
		return nil, err
	}
	configID, hasConfigID, err := adv.uint32Header(HeaderConfigID)
	if err != nil {
		return nil, err
	}
	deviceUUID, messageType, ok := ParseUSN(adv.USN)
	if !ok {
		return nil, fmt.Errorf("%w: USN %q", ErrInvalidAdvertisement, adv.USN)
	}
	kind := classify(messageType)
	if kind == messageUnknown {
		return nil, fmt.Errorf("%w: message type %q", ErrInvalidAdvertisement, messageType)
	}
	var (
		deviceType    string
		deviceVersion int
	)
	if kind == messageDevice {
		if deviceType, deviceVersion, ok = ParseTypeVersionURN(messageType); !ok {
			return nil, fmt.Errorf("%w: device type %q", ErrInvalidAdvertisement, messageType)
		}
	}
	if adv.Server == "" {
		return nil, fmt.Errorf("%w: missing SERVER", ErrInvalidAdvertisement)
	}
	maxAge, ok := MaxAge(adv.Header.Get("CACHE-CONTROL"))
	if !ok {
		return nil, fmt.Errorf("%w: missing max-age", ErrInvalidAdvertisement)
	}
	date := adv.Date
	if date.IsZero() {
		date = t.now()
	}
	expiration := date.Add(time.Duration(maxAge) * time.Second)

	versionInfos := upnp.ProductTokens(adv.Server)
	version, err := upnp.FindVersion(adv.Server)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAdvertisement, err)
	}
	if version.VerMax != 1 {
		return nil, fmt.Errorf("%w: incompatible version %s", ErrInvalidAdvertisement, version)
	}

	searchPort := upnp.DefaultSearchPort
	if version.VerMin >= 1 {
		if !hasBootID || !hasConfigID {
			return nil, fmt.Errorf("%w: UPnP 1.1 message without BOOTID or CONFIGID", ErrInvalidAdvertisement)
		}
		if sp, ok := adv.header(HeaderSearchPort); ok {
			port, err := parsePort(sp)
			if err != nil {
				return nil, err
			}
			searchPort = port
		}
	}

	var osVersion, productVersion string
	if len(versionInfos) > 0 {
		osVersion = versionInfos[0]
	}
	if len(versionInfos) > 2 {
		productVersion = versionInfos[2]
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	root, added := t.getOrCreateRootEntry(deviceUUID, adv.Location, version, osVersion, productVersion, expiration)
	if hasBootID && root.BootID > bootID {
		return nil, fmt.Errorf("%w: stale boot id %d", ErrInvalidAdvertisement, bootID)
	}

	var (
		rebooted      bool
		configChanged bool
		events        []func(Listener)
	)
	if current := root.GetConfigID(adv.Remote); current != 0 && current != configID {
		configChanged = true
	}
	root.SetConfigID(adv.Remote, configID)
	if !added && hasBootID && root.BootID < bootID {
		rebooted = true
		root.ClearLinks()
	}
	root.AddOrUpdateLink(adv.Local, adv.Location, adv.HTTPVersion, searchPort)
	root.BootID = bootID

	switch kind {
	case messageRootDevice:
		root.GetOrCreateDeviceEntry(deviceUUID)
		if !root.rootDeviceSetUp {
			root = t.mergeOrMoveRootEntry(root, deviceUUID)
			root.rootDeviceSetUp = true
			snapshot := root.Clone()
			events = append(events, func(l Listener) { l.RootDeviceAdded(snapshot) })
		}
	case messageDevice:
		device := root.GetOrCreateDeviceEntry(deviceUUID)
		isNew := device.DeviceType == ""
		device.DeviceType = deviceType
		device.DeviceTypeVersion = deviceVersion
		if isNew {
			snapshot, ds := root.Clone(), device.clone()
			events = append(events, func(l Listener) { l.DeviceAdded(snapshot, ds) })
		}
	case messageService:
		device := root.GetOrCreateDeviceEntry(deviceUUID)
		if device.AddService(messageType) {
			snapshot, ds := root.Clone(), device.clone()
			events = append(events, func(l Listener) { l.ServiceAdded(snapshot, ds, messageType) })
		}
	}

	// reboot and configuration events go first
	if rebooted || configChanged {
		snapshot := root.Clone()
		first := func(l Listener) { l.DeviceConfigurationChanged(snapshot) }
		if rebooted {
			first = func(l Listener) { l.DeviceRebooted(snapshot, configChanged) }
		}
		events = append([]func(Listener){first}, events...)
	}
	return events, nil
}

type messageKind int

const (
	messageUnknown messageKind = iota
	messageRootDevice
	messageDevice
	messageService
)

func classify(messageType string) messageKind {
	switch {
	case messageType == upnp.NT_RootDevice:
		return messageRootDevice
	case !strings.HasPrefix(messageType, "urn:"):
		return messageUnknown
	case strings.Contains(messageType, ":device:"):
		return messageDevice
	case strings.Contains(messageType, ":service:"):
		return messageService
	default:
		return messageUnknown
	}
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < upnp.MinSearchPort || port > upnp.MaxSearchPort {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidAdvertisement, HeaderSearchPort, s)
	}
	return port, nil
}

func (t *Tracker) handleByeBye(adv *Advertisement) ([]func(Listener), error) {
	bootID, hasBootID, err := adv.uint32Header(HeaderBootID)
	if err != nil {
		return nil, err
	}
	deviceUUID, _, ok := ParseUSN(adv.USN)
	if !ok {
		return nil, fmt.Errorf("%w: USN %q", ErrInvalidAdvertisement, adv.USN)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	root := t.rootEntryByContainedDevice(deviceUUID)
	if root == nil {
		return nil, nil
	}
	if hasBootID && root.BootID > bootID {
		return nil, fmt.Errorf("%w: stale boot id %d", ErrInvalidAdvertisement, bootID)
	}
	t.remove(root)
	snapshot := root.Clone()
	return []func(Listener){func(l Listener) { l.RootDeviceRemoved(snapshot) }}, nil
}

func (t *Tracker) handleUpdate(adv *Advertisement) ([]func(Listener), error) {
	bootID, hasBootID, err := adv.uint32Header(HeaderBootID)
	if err != nil {
		return nil, err
	}
	nextBootID, hasNextBootID, err := adv.uint32Header(HeaderNextBootID)
	if err != nil {
		return nil, err
	}
	if !hasBootID || !hasNextBootID {
		return nil, fmt.Errorf("%w: update without BOOTID or NEXTBOOTID", ErrInvalidAdvertisement)
	}
	deviceUUID, _, ok := ParseUSN(adv.USN)
	if !ok {
		return nil, fmt.Errorf("%w: USN %q", ErrInvalidAdvertisement, adv.USN)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	root := t.rootEntryByContainedDevice(deviceUUID)
	if root == nil {
		return nil, nil
	}
	if root.BootID > bootID {
		return nil, fmt.Errorf("%w: stale boot id %d", ErrInvalidAdvertisement, bootID)
	}
	rebooted := root.BootID < bootID
	root.BootID = nextBootID
	if !rebooted {
		return nil, nil
	}
	snapshot := root.Clone()
	return []func(Listener){func(l Listener) { l.DeviceRebooted(snapshot, false) }}, nil
}

func (t *Tracker) getOrCreateRootEntry(deviceUUID, location string, version upnp.Version, osVersion, productVersion string, expiration time.Time) (*RootEntry, bool) {
	root := t.rootEntryByContainedDevice(deviceUUID)
	if root == nil {
		root = t.rootEntryByLocation(location)
	}
	if root != nil {
		root.ExpirationTime = expiration
		return root, false
	}
	root = NewRootEntry(version, osVersion, productVersion, expiration)
	t.pending = append(t.pending, root)
	return root, true
}

func (t *Tracker) mergeOrMoveRootEntry(pending *RootEntry, rootDeviceUUID string) *RootEntry {
	t.removePending(pending)
	if target, ok := t.entries[rootDeviceUUID]; ok {
		if target != pending {
			target.MergeRootEntry(pending)
		}
		return target
	}
	pending.RootDeviceUUID = rootDeviceUUID
	t.entries[rootDeviceUUID] = pending
	return pending
}

func (t *Tracker) rootEntryByContainedDevice(deviceUUID string) *RootEntry {
	for _, root := range t.entries {
		if _, ok := root.devices[deviceUUID]; ok {
			return root
		}
	}
	for _, root := range t.pending {
		if _, ok := root.devices[deviceUUID]; ok {
			return root
		}
	}
	return nil
}

func (t *Tracker) rootEntryByLocation(location string) *RootEntry {
	for _, root := range t.entries {
		if _, ok := root.links[location]; ok {
			return root
		}
	}
	for _, root := range t.pending {
		if _, ok := root.links[location]; ok {
			return root
		}
	}
	return nil
}

func (t *Tracker) removePending(root *RootEntry) {
	for i, p := range t.pending {
		if p == root {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return
		}
	}
}

func (t *Tracker) remove(root *RootEntry) {
	if root.RootDeviceUUID != "" && t.entries[root.RootDeviceUUID] == root {
		delete(t.entries, root.RootDeviceUUID)
	}
	t.removePending(root)
}

// Expire removes all entries that expired before now and returns them.
func (t *Tracker) Expire(now time.Time) []*RootEntry {
	t.mu.Lock()
	var removed []*RootEntry
	pending := t.pending[:0]
	for _, p := range t.pending {
		if !p.ExpirationTime.Before(now) {
			pending = append(pending, p)
		}
	}
	t.pending = pending
	for uuid, root := range t.entries {
		if root.ExpirationTime.Before(now) {
			delete(t.entries, uuid)
			removed = append(removed, root.Clone())
		}
	}
	t.mu.Unlock()

	for _, root := range removed {
		root := root
		t.fire([]func(Listener){func(l Listener) { l.RootDeviceRemoved(root) }})
	}
	return removed
}

// Run expires entries every interval until ctx is done. afterSweep, if
// given, runs after each sweep.
func (t *Tracker) Run(ctx context.Context, interval time.Duration, afterSweep ...func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, root := range t.Expire(t.now()) {
				zerolog.Ctx(ctx).Debug().
					Str("uuid", root.RootDeviceUUID).
					Msg("root device expired")
			}
			for _, f := range afterSweep {
				f()
			}
		}
	}
}

// RootEntries returns snapshots of all root entries whose root device is
// known.
func (t *Tracker) RootEntries() []*RootEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := make([]*RootEntry, 0, len(t.entries))
	for _, root := range t.entries {
		entries = append(entries, root.Clone())
	}
	return entries
}

// RootEntry returns a snapshot of the entry of a root device.
func (t *Tracker) RootEntry(rootDeviceUUID string) (*RootEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	root, ok := t.entries[rootDeviceUUID]
	if !ok {
		return nil, false
	}
	return root.Clone(), true
}

// PreferredLink returns the nearest link of a root device.
func (t *Tracker) PreferredLink(rootDeviceUUID string) (*LinkData, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	root, ok := t.entries[rootDeviceUUID]
	if !ok || root.preferred == nil {
		return nil, false
	}
	return root.preferred, true
}

// Do runs f with the tracker locked. f must not keep references to the
// entries.
func (t *Tracker) Do(f func(entries map[string]*RootEntry)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f(t.entries)
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
