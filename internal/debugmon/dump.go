// Package debugmon implements the read-only debug monitor (spec.md section
// 4.I): a one-shot text dump of live domain state served over a plain TCP
// listener, plus a websocket feed for live tailing, plus output from any
// registered pkg/plugins.DumpPlugin.
package debugmon

import (
	"fmt"
	"sort"

	"github.com/ocx/ddscore/internal/domain"
	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/pkg/plugins"
)

// Dump renders a full snapshot of d's participants, their endpoints, match
// tables, WHC/RHC state, and address sets, followed by every registered
// plugin's contribution in priority order (q_debmon.c's fixed
// section-then-plugin-sections layout).
func Dump(d *domain.Domain, registry *plugins.Registry) []string {
	var lines []string
	lines = append(lines, fmt.Sprintf("domain %d", d.DomainID))
	lines = append(lines, fmt.Sprintf("entities: %d", d.Hash.Len()))

	for _, e := range d.Hash.EnumParticipants() {
		p, ok := e.(*domain.Participant)
		if !ok {
			continue
		}
		lines = append(lines, dumpParticipant(p)...)
	}

	if registry != nil {
		if extra := registry.DumpAll(); len(extra) > 0 {
			lines = append(lines, "-- plugins --")
			lines = append(lines, extra...)
		}
	}
	return lines
}

func dumpParticipant(p *domain.Participant) []string {
	lines := []string{
		fmt.Sprintf("participant %s addrs=%v matchcount=%d", p.GUID(), p.Addresses, p.MatchCount()),
	}
	writers := p.Writers()
	sort.Slice(writers, func(i, j int) bool { return writers[i].GUID().String() < writers[j].GUID().String() })
	for _, w := range writers {
		lines = append(lines, dumpWriter(w)...)
	}
	readers := p.Readers()
	sort.Slice(readers, func(i, j int) bool { return readers[i].GUID().String() < readers[j].GUID().String() })
	for _, r := range readers {
		lines = append(lines, dumpReader(r)...)
	}
	return lines
}

func dumpWriter(w *domain.Writer) []string {
	line := fmt.Sprintf("  writer %s topic=%s type=%s matched=%d whc_len=%d",
		w.GUID(), w.TopicName(), w.TypeName(), w.MatchedCount(), w.Whc.Len())
	addrs := w.Addresses()
	matched := make([]entity.GUID, 0, len(addrs))
	for g := range addrs {
		matched = append(matched, g)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].String() < matched[j].String() })
	lines := []string{line}
	for _, g := range matched {
		lines = append(lines, fmt.Sprintf("    -> reader %s at %v", g, addrs[g]))
	}
	return lines
}

func dumpReader(r *domain.Reader) []string {
	return []string{
		fmt.Sprintf("  reader %s topic=%s type=%s matched=%d rhc_len=%d instances=%d out_of_sync=%t",
			r.GUID(), r.TopicName(), r.TypeName(), r.MatchedCount(), r.Rhc.Len(), r.Rhc.InstanceCount(), r.OutOfSync()),
	}
}
