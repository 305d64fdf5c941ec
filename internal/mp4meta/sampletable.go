package mp4meta

import (
	"fmt"

	"github.com/mediacore/hlsengine/internal/bmff"
)

// maxSampleCount caps the resolved sample vector to guard against
// allocator abuse from a malformed stsz/stts pair.
const maxSampleCount = 10_000_000

// sampleTableBoxes holds the raw stbl children a single resolver pass needs.
type sampleTableBoxes struct {
	stts []bmff.SttsEntry
	ctts []bmff.CttsEntry
	hasCtts bool
	stss []uint32
	hasStss bool
	uniformSize uint32
	sizes       []uint32
	stsc        []bmff.StscEntry
	chunkOffsets []uint64
}

// resolveSamples turns one track's stbl box contents into a flat,
// index-ordered vector of ResolvedSample. r must be positioned with the
// stbl box as the current box (Data()/Enter() not yet called).
func resolveSamples(r *bmff.Reader) ([]ResolvedSample, error) {
	var tbl sampleTableBoxes
	var sawStco, sawCo64 bool

	r.Enter()
	for r.Next() {
		switch r.Type() {
		case bmff.TypeStts:
			tbl.stts = bmff.ReadStts(r.Data())
		case bmff.TypeCtts:
			tbl.ctts = bmff.ReadCtts(r.Data(), r.Version())
			tbl.hasCtts = true
		case bmff.TypeStss:
			tbl.stss = bmff.ReadStss(r.Data())
			tbl.hasStss = true
		case bmff.TypeStsz:
			tbl.uniformSize, tbl.sizes = bmff.ReadStsz(r.Data())
		case bmff.TypeStsc:
			tbl.stsc = bmff.ReadStsc(r.Data())
		case bmff.TypeStco:
			tbl.chunkOffsets = bmff.ReadChunkOffsets(r.Data(), false)
			sawStco = true
		case bmff.TypeCo64:
			tbl.chunkOffsets = bmff.ReadChunkOffsets(r.Data(), true)
			sawCo64 = true
		}
	}
	if err := r.Err(); err != nil {
		r.Exit()
		return nil, fmt.Errorf("stbl: %w", err)
	}
	r.Exit()

	if sawStco == sawCo64 {
		return nil, fmt.Errorf("stbl: exactly one of stco/co64 must be present")
	}
	if len(tbl.stsc) == 0 {
		return nil, fmt.Errorf("stbl: missing stsc")
	}

	sampleCount := tbl.uniformSize == 0 && tbl.sizes != nil
	var count int
	if sampleCount {
		count = len(tbl.sizes)
	} else {
		for _, e := range tbl.stts {
			count += int(e.Count)
		}
	}
	if count > maxSampleCount {
		return nil, fmt.Errorf("stbl: sample count %d exceeds cap", count)
	}
	if count == 0 {
		return nil, nil
	}

	samples := make([]ResolvedSample, count)

	// 1. DTS/duration from stts.
	idx := 0
	var dts uint64
	for _, e := range tbl.stts {
		for i := uint32(0); i < e.Count && idx < count; i++ {
			samples[idx].DecodeTimestamp = dts
			samples[idx].Duration = e.Delta
			dts += uint64(e.Delta)
			idx++
		}
	}
	for ; idx < count; idx++ {
		// stts under-counted: pad with the last known duration, DTS continues.
		var lastDur uint32
		if idx > 0 {
			lastDur = samples[idx-1].Duration
		}
		samples[idx].DecodeTimestamp = dts
		samples[idx].Duration = lastDur
		dts += uint64(lastDur)
	}

	// 2. Composition offsets from ctts (zero if absent).
	if tbl.hasCtts {
		idx = 0
		for _, e := range tbl.ctts {
			for i := uint32(0); i < e.Count && idx < count; i++ {
				samples[idx].CompositionOffset = e.Offset
				idx++
			}
		}
	}

	// 3. Sync flags from stss (all sync if absent).
	if tbl.hasStss {
		syncSet := make(map[uint32]struct{}, len(tbl.stss))
		for _, n := range tbl.stss {
			syncSet[n] = struct{}{}
		}
		for i := range samples {
			if _, ok := syncSet[uint32(i+1)]; ok {
				samples[i].IsSync = true
			}
		}
	} else {
		for i := range samples {
			samples[i].IsSync = true
		}
	}

	// 4. Sizes from stsz.
	if tbl.uniformSize != 0 {
		for i := range samples {
			samples[i].Size = tbl.uniformSize
		}
	} else {
		for i := range samples {
			if i < len(tbl.sizes) {
				samples[i].Size = tbl.sizes[i]
			}
		}
	}

	// 5. File offsets: sample -> chunk via stsc, chunk -> offset via stco/co64.
	if err := assignFileOffsets(samples, tbl.stsc, tbl.chunkOffsets); err != nil {
		return nil, err
	}

	for i := range samples {
		samples[i].Index = i
	}
	return samples, nil
}

// assignFileOffsets resolves each sample's FileOffset by walking chunks
// in order, consulting stsc for how many samples each chunk holds and
// stco/co64 for each chunk's starting byte offset.
func assignFileOffsets(samples []ResolvedSample, stsc []bmff.StscEntry, chunkOffsets []uint64) error {
	if len(chunkOffsets) == 0 {
		return fmt.Errorf("stbl: missing chunk offset table")
	}

	sampleIdx := 0
	for chunk := 1; chunk <= len(chunkOffsets) && sampleIdx < len(samples); chunk++ {
		samplesPerChunk := samplesPerChunkFor(stsc, uint32(chunk))
		offset := int64(chunkOffsets[chunk-1])
		for i := uint32(0); i < samplesPerChunk && sampleIdx < len(samples); i++ {
			samples[sampleIdx].FileOffset = offset
			offset += int64(samples[sampleIdx].Size)
			sampleIdx++
		}
	}
	if sampleIdx < len(samples) {
		return fmt.Errorf("stbl: chunk table covers only %d of %d samples", sampleIdx, len(samples))
	}
	return nil
}

// samplesPerChunkFor returns the samples-per-chunk value from the last
// stsc entry whose FirstChunk is <= chunk.
func samplesPerChunkFor(stsc []bmff.StscEntry, chunk uint32) uint32 {
	var cur uint32
	for _, e := range stsc {
		if e.FirstChunk <= chunk {
			cur = e.SamplesPerChunk
		} else {
			break
		}
	}
	return cur
}
