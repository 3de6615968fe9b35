package domain

import (
	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/rhc"
	"github.com/ocx/ddscore/internal/rtps"
	"github.com/ocx/ddscore/internal/whc"
)

// Write appends data to the writer's history cache and records the
// resulting retained-sample gauge. Nothing is transmitted to matched proxy
// readers here; this call only performs the WHC-local bookkeeping spec.md
// section 4.F describes as "write(sample, timestamp, action)".
func (w *Writer) Write(data []byte, ts rtps.Time, d *Domain) (*whc.Sample, error) {
	s, err := w.Whc.Write(data, ts)
	if err != nil {
		if err == whc.ErrResourceLimitExceeded {
			d.Metrics.RecordThrottle(w.Guid.String())
		}
		return nil, err
	}
	d.Metrics.RecordWrite(w.Guid.String(), w.Whc.Len())
	return s, nil
}

// WriteDispose behaves like Write but marks the sample as a dispose.
func (w *Writer) WriteDispose(ts rtps.Time, d *Domain) (*whc.Sample, error) {
	s, err := w.Whc.WriteDispose(ts)
	if err != nil {
		return nil, err
	}
	d.Metrics.RecordWrite(w.Guid.String(), w.Whc.Len())
	return s, nil
}

// Deliver stores a sample received from a matched proxy writer into the
// reader's history cache, resolving the instance handle via the domain's
// shared tkmap, unless the reader has been marked out-of-sync by
// DeleteReader (spec.md section 9's "further arriving samples ... are
// discarded" deletion policy).
func (d *Domain) Deliver(r *Reader, keyBytes []byte, data any, writerGUID entity.GUID, ts rtps.Time) {
	if r.outOfSync.Load() {
		return
	}
	key := string(keyBytes)
	inst, _ := d.Tk.Find(key, keyBytes, true)
	r.Rhc.Store(key, inst.Handle, data, writerGUID, ts)
}

// Read returns up to maxSamples samples matching m without removing them,
// and records the read counter/gauge.
func (r *Reader) Read(maxSamples int, m rhc.Mask, handle entity.InstanceHandle, d *Domain) *rhc.Loan {
	loan := r.Rhc.Read(maxSamples, m, handle)
	d.Metrics.RecordRead(r.Guid.String(), false, r.Rhc.Len())
	return loan
}

// Take behaves like Read but removes matched samples from the cache.
func (r *Reader) Take(maxSamples int, m rhc.Mask, handle entity.InstanceHandle, d *Domain) *rhc.Loan {
	loan := r.Rhc.Take(maxSamples, m, handle)
	d.Metrics.RecordRead(r.Guid.String(), true, r.Rhc.Len())
	return loan
}
