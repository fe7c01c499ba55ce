package plugin_mp4

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"m7s.live/mp4probe"
	"m7s.live/mp4probe/pkg"
	mp4 "m7s.live/mp4probe/plugin/mp4/pkg"
)

type MP4Plugin struct {
	mp4probe.Plugin
	Root            string `default:"." desc:"directory the probe paths are relative to"`
	IgnoreEditLists bool   `desc:"index samples without applying edit lists"`
	Strict          bool   `desc:"reject non-zero flags and inconsistent sample tables"`
	MaxMoovSize     int64  `default:"67108864" desc:"largest moov box read into memory, in bytes"`
	Concurrency     int    `default:"4" desc:"files probed in parallel by a batch request"`
	CacheProbe      bool   `default:"true" desc:"keep probe summaries in the database"`
	HistoryLimit    int    `default:"100" desc:"records returned by the history api"`
}

const defaultConfig mp4probe.DefaultYaml = `maxmoovsize: 67108864`

var _ = mp4probe.InstallPlugin[MP4Plugin](defaultConfig)

// ProbeRecord caches one probe summary, keyed by path and invalidated when
// the file size or modification time (unix nanoseconds) changes.
type ProbeRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Path      string    `gorm:"uniqueIndex" json:"path"`
	Size      int64     `json:"size"`
	ModTime   int64     `json:"modTime"`
	Summary   string    `json:"-"`
	Error     string    `json:"error,omitempty"`
	Tracks    int       `json:"tracks"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type probeOptions struct {
	mp4.ParseOptions
	root         string
	maxMoovSize  int64
	concurrency  int
	historyLimit int
	cache        bool
}

func (p *MP4Plugin) OnInit() error {
	if p.CacheProbe {
		if p.DB == nil {
			p.Warn("no database, probe cache disabled")
			p.CacheProbe = false
		} else if err := p.DB.AutoMigrate(&ProbeRecord{}); err != nil {
			return fmt.Errorf("migrate probe records: %w", err)
		}
	}
	p.Info("probe root", "root", p.Root, "strict", p.Strict, "ignoreEditLists", p.IgnoreEditLists)
	return nil
}

func (p *MP4Plugin) options() (opts probeOptions) {
	p.ConfigLock.RLock()
	defer p.ConfigLock.RUnlock()
	opts.IgnoreEditLists = p.IgnoreEditLists
	opts.Strict = p.Strict
	opts.root = p.Root
	opts.maxMoovSize = p.MaxMoovSize
	opts.concurrency = max(p.Concurrency, 1)
	opts.historyLimit = max(p.HistoryLimit, 1)
	opts.cache = p.CacheProbe && p.DB != nil
	return
}

// resolve maps a request path onto the probe root.
func (opts *probeOptions) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty path", pkg.ErrBadQuery)
	}
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %s", pkg.ErrOutsideRoot, name)
	}
	return filepath.Join(opts.root, local), nil
}

// ProbeFile is an opened file with its movie read. Close releases the file.
type ProbeFile struct {
	*mp4.Demuxer
	Path string
	Info os.FileInfo
	file *os.File
}

func (f *ProbeFile) Close() error {
	return f.file.Close()
}

func (f *ProbeFile) Track(id uint32) (*mp4.TrackSampleTable, error) {
	for _, t := range f.Movie.Tracks {
		if t.Track.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", pkg.ErrTrackMissing, id)
}

// Open reads the movie of one file under the probe root.
func (p *MP4Plugin) Open(ctx context.Context, name string) (pf *ProbeFile, err error) {
	opts := p.options()
	return p.open(ctx, &opts, name)
}

func (p *MP4Plugin) open(ctx context.Context, opts *probeOptions, name string) (pf *ProbeFile, err error) {
	full, err := opts.resolve(name)
	if err != nil {
		return
	}
	pf = &ProbeFile{Path: name}
	if pf.file, err = os.Open(full); err != nil {
		return nil, err
	}
	if pf.Info, err = pf.file.Stat(); err == nil && !pf.Info.Mode().IsRegular() {
		err = fmt.Errorf("%w: %s", pkg.ErrNotFile, name)
	}
	if err != nil {
		pf.file.Close()
		return nil, err
	}
	pf.Demuxer = mp4.NewDemuxer(pf.file, opts.ParseOptions, p.With("path", name))
	if opts.maxMoovSize > 0 {
		pf.MaxMoovSize = opts.maxMoovSize
	}
	if err = pf.ReadHead(ctx); err != nil {
		pf.file.Close()
		return nil, err
	}
	return pf, nil
}

// Probe returns the summary of one file, from the cache when the file is unchanged.
func (p *MP4Plugin) Probe(ctx context.Context, name string) (*MovieSummary, error) {
	opts := p.options()
	return p.probe(ctx, &opts, name)
}

func (p *MP4Plugin) probe(ctx context.Context, opts *probeOptions, name string) (summary *MovieSummary, err error) {
	if opts.cache {
		if summary = p.cached(opts, name); summary != nil {
			if p.Server != nil {
				p.Server.Stats.CacheHits.Add(1)
			}
			return
		}
	}
	start := time.Now()
	pf, err := p.open(ctx, opts, name)
	if err == nil {
		summary = NewMovieSummary(pf)
		pf.Close()
	}
	elapsed := time.Since(start)
	if p.Server != nil {
		var trackTypes []string
		var samples int
		if summary != nil {
			for _, t := range summary.Tracks {
				trackTypes = append(trackTypes, t.Type)
				samples += t.SampleCount
			}
		}
		p.Server.Stats.Observe(elapsed, trackTypes, samples, err)
	}
	if err != nil {
		p.Warn("probe failed", "path", name, "error", err)
	} else {
		p.Debug("probed", "path", name, "tracks", len(summary.Tracks), "elapsed", elapsed)
	}
	if opts.cache && !errors.Is(err, context.Canceled) {
		p.store(opts, name, pf, summary, err)
	}
	return
}

func (p *MP4Plugin) cached(opts *probeOptions, name string) *MovieSummary {
	full, err := opts.resolve(name)
	if err != nil {
		return nil
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil
	}
	var record ProbeRecord
	if err = p.DB.Where("path = ?", name).First(&record).Error; err != nil {
		return nil
	}
	if record.Error != "" || record.Size != info.Size() || record.ModTime != info.ModTime().UnixNano() {
		return nil
	}
	var summary MovieSummary
	if err = json.Unmarshal([]byte(record.Summary), &summary); err != nil {
		p.Warn("drop bad cache record", "path", name, "error", err)
		return nil
	}
	summary.Cached = true
	return &summary
}

func (p *MP4Plugin) store(opts *probeOptions, name string, pf *ProbeFile, summary *MovieSummary, probeErr error) {
	record := ProbeRecord{Path: name}
	var info os.FileInfo
	if pf != nil {
		info = pf.Info
	} else if full, err := opts.resolve(name); err != nil {
		return
	} else if info, err = os.Stat(full); err != nil || !info.Mode().IsRegular() {
		return
	}
	record.Size = info.Size()
	record.ModTime = info.ModTime().UnixNano()
	if probeErr != nil {
		record.Error = probeErr.Error()
	} else {
		out, err := json.Marshal(summary)
		if err != nil {
			p.Error("encode summary", "path", name, "error", err)
			return
		}
		record.Summary = string(out)
		record.Tracks = len(summary.Tracks)
	}
	err := p.DB.Where(ProbeRecord{Path: name}).
		Assign(map[string]any{
			"size":     record.Size,
			"mod_time": record.ModTime,
			"summary":  record.Summary,
			"error":    record.Error,
			"tracks":   record.Tracks,
		}).
		FirstOrCreate(&record).Error
	if err != nil {
		p.Error("store probe record", "path", name, "error", err)
	}
}

// History lists the most recently updated probe records.
func (p *MP4Plugin) History(limit int) (records []ProbeRecord, err error) {
	if p.DB == nil {
		return nil, pkg.ErrDisabled
	}
	err = p.DB.Order("updated_at desc").Limit(limit).Find(&records).Error
	return
}
