package scanner

import (
	"context"
	"net"

	"github.com/enbility/zeroconf/v3"
)

// ServiceType is the mDNS service type ethoscope devices advertise under.
const ServiceType = "_ethoscope._tcp"

// Domain is the mDNS domain ethoscope devices advertise in.
const Domain = "local."

// ServiceEntry is a discovered device, with its TXT-derived identity hints.
// Authoritative identity always comes from the device's own /id endpoint,
// not from these fields — they are a convenience for the initial contact.
type ServiceEntry struct {
	InstanceName string
	Addresses    []net.IP
	Port         int
	MachineName  string
	MachineID    string
}

func (e *ServiceEntry) firstAddress() string {
	if len(e.Addresses) == 0 {
		return ""
	}
	return e.Addresses[0].String()
}

// Browser insulates the scanner's core logic from the concrete mDNS
// library. Browse aggregates by instance name: addresses observed on
// multiple interfaces are merged into one entry, mirroring the merge
// behaviour of a real zeroconf browse.
type Browser interface {
	Browse(ctx context.Context) (added, removed <-chan *ServiceEntry, err error)
}

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct{}

// NewMDNSBrowser constructs the zeroconf-backed Browser.
func NewMDNSBrowser() *MDNSBrowser {
	return &MDNSBrowser{}
}

// Browse starts an mDNS browse for ServiceType/Domain. Services are
// aggregated by instance name; both channels close when ctx is cancelled.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *ServiceEntry, <-chan *ServiceEntry, error) {
	addedCh := make(chan *ServiceEntry)
	removedCh := make(chan *ServiceEntry)

	entries := make(chan *zeroconf.ServiceEntry)
	removedEntries := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(addedCh)
		defer close(removedCh)

		services := make(map[string]*ServiceEntry)

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := entryToServiceEntry(entry)
				if svc == nil {
					continue
				}

				if existing, found := services[svc.InstanceName]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
				} else {
					services[svc.InstanceName] = svc
					select {
					case addedCh <- svc:
					case <-ctx.Done():
						return
					}
				}

			case entry, ok := <-removedEntries:
				if !ok {
					continue
				}
				if existing, found := services[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entry)
					if len(existing.Addresses) == 0 {
						delete(services, entry.Instance)
						select {
						case removedCh <- existing:
						case <-ctx.Done():
							return
						}
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removedEntries)
	}()

	return addedCh, removedCh, nil
}

func entryToServiceEntry(entry *zeroconf.ServiceEntry) *ServiceEntry {
	if entry == nil {
		return nil
	}
	addrs := entry.AddrIPv4
	if len(addrs) == 0 {
		addrs = entry.AddrIPv6
	}
	if len(addrs) == 0 {
		return nil
	}

	txt := parseTXT(entry.Text)

	return &ServiceEntry{
		InstanceName: entry.Instance,
		Addresses:    addrs,
		Port:         entry.Port,
		MachineName:  txt["MACHINE_NAME"],
		MachineID:    txt["MACHINE_ID"],
	}
}

func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, rec := range records {
		for i := 0; i < len(rec); i++ {
			if rec[i] == '=' {
				out[rec[:i]] = rec[i+1:]
				break
			}
		}
	}
	return out
}

func mergeAddresses(existing, incoming []net.IP) []net.IP {
	for _, addr := range incoming {
		found := false
		for _, e := range existing {
			if e.Equal(addr) {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, addr)
		}
	}
	return existing
}

func removeAddresses(existing []net.IP, entry *zeroconf.ServiceEntry) []net.IP {
	removed := entry.AddrIPv4
	if len(removed) == 0 {
		removed = entry.AddrIPv6
	}
	out := existing[:0]
	for _, addr := range existing {
		keep := true
		for _, r := range removed {
			if addr.Equal(r) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, addr)
		}
	}
	return out
}
