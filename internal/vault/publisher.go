// Package vault publishes ready documents into the vault tree and maintains
// the daily digest.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smizuno/caplog/internal/events"
	"github.com/smizuno/caplog/internal/logging"
	"github.com/smizuno/caplog/internal/model"
	"github.com/smizuno/caplog/internal/stage"
)

// kindFolders is the fixed kind-to-subfolder routing table. Every kind has a
// home; anything unmatched lands in defaultFolder rather than being dropped.
var kindFolders = map[model.Kind]string{
	model.KindTodo:               "TODOs",
	model.KindIdea:               "Ideas",
	model.KindLink:               "Links",
	model.KindNote:               "Quick Notes",
	model.KindVoice:              "Voice Notes",
	model.KindVoiceTranscription: "Voice Notes",
}

const defaultFolder = "Miscellaneous"

// digestFolders lists the subfolders tallied by the daily digest, in
// rendering order.
var digestFolders = []string{"TODOs", "Ideas", "Voice Notes", "Links", "Quick Notes", defaultFolder}

// Publisher is the ready-stage handler. It copies rendered documents into
// the vault's per-kind subfolders and archives the local ready copy. The
// vault tree is written by this component only; everything else stays inside
// the pipeline's own stage directories.
type Publisher struct {
	vaultPath   string
	capturesDir string
	ready       *stage.Queue
	archive     *stage.Queue
	bus         *events.Bus
	logger      *logging.Logger
	clock       func() time.Time
}

// NewPublisher builds the publisher over the pipeline root and vault config.
func NewPublisher(root string, cfg model.VaultConfig, bus *events.Bus, logger *logging.Logger) *Publisher {
	return &Publisher{
		vaultPath:   cfg.Path,
		capturesDir: filepath.Join(cfg.Path, cfg.CapturesFolder),
		ready:       stage.New(root, model.StageReady),
		archive:     stage.NewAt(filepath.Join(root, string(model.StageArchive), "ready"), model.StageArchive),
		bus:         bus,
		logger:      logger,
		clock:       time.Now,
	}
}

// SetClock overrides the publishing clock. Used by tests.
func (p *Publisher) SetClock(fn func() time.Time) {
	p.clock = fn
}

// EnsureStructure creates the captures folder tree inside the vault.
func (p *Publisher) EnsureStructure() error {
	return EnsureFolders(p.vaultPath, filepath.Base(p.capturesDir))
}

// EnsureFolders creates the captures folder tree under vaultPath. Called at
// setup and again at daemon start in case folders were removed in between.
func EnsureFolders(vaultPath, capturesFolder string) error {
	for _, folder := range digestFolders {
		if err := os.MkdirAll(filepath.Join(vaultPath, capturesFolder, folder), 0755); err != nil {
			return fmt.Errorf("create vault folder %s: %w", folder, err)
		}
	}
	return nil
}

// Handle publishes one ready document. The copy into the vault happens
// first; only after it succeeds is the local copy archived, so a vault write
// failure retains the source in ready/ for retry.
func (p *Publisher) Handle(path string) error {
	name := filepath.Base(path)
	folder := p.routeFolder(name)

	targetDir := filepath.Join(p.capturesDir, folder)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("create vault folder %s: %w", folder, err)
	}

	target := filepath.Join(targetDir, name)
	if err := stage.CopyFile(p.ready.Path(name), target); err != nil {
		if os.IsNotExist(err) {
			return stage.ErrGone
		}
		return fmt.Errorf("publish %s to vault: %w", name, err)
	}

	if _, err := p.ready.ArchiveTo(p.archive, name, p.clock()); err != nil && !errors.Is(err, stage.ErrGone) {
		return fmt.Errorf("archive published copy %s: %w", name, err)
	}

	p.logger.Infof("published doc=%s folder=%s", name, folder)
	if p.bus != nil {
		p.bus.Publish(events.EventRecordPublished, map[string]any{
			"record_id": name[:len(name)-len(filepath.Ext(name))],
			"stage":     string(model.StageVault),
			"folder":    folder,
		})
	}
	return nil
}

// routeFolder maps a document filename to its vault subfolder via the
// "{kind}_" prefix convention.
func (p *Publisher) routeFolder(name string) string {
	if kind, ok := model.ParseRecordKind(name); ok {
		if folder, ok := kindFolders[kind]; ok {
			return folder
		}
	}
	return defaultFolder
}

// UpdateDailyDigest tallies today's published documents per subfolder and
// appends a digest section to the day's summary note. Appends only: prior
// sections are never rewritten or de-duplicated.
func (p *Publisher) UpdateDailyDigest() error {
	now := p.clock()
	day := now.UTC().Format("2006-01-02")
	compactDay := now.UTC().Format("20060102")

	counts := make(map[string]int, len(digestFolders))
	for _, folder := range digestFolders {
		matches, err := filepath.Glob(filepath.Join(p.capturesDir, folder, "*"+compactDay+"*.md"))
		if err != nil {
			return fmt.Errorf("scan vault folder %s: %w", folder, err)
		}
		counts[folder] = len(matches)
	}

	section := p.renderDigestSection(counts)
	digestPath := filepath.Join(p.vaultPath, day+".md")

	f, err := os.OpenFile(digestPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open daily digest %s: %w", day, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat daily digest %s: %w", day, err)
	}
	if info.Size() == 0 {
		if _, err := fmt.Fprintf(f, "# %s\n", day); err != nil {
			return fmt.Errorf("write daily digest %s: %w", day, err)
		}
	}
	if _, err := f.WriteString(section); err != nil {
		return fmt.Errorf("append daily digest %s: %w", day, err)
	}

	p.logger.Infof("digest updated day=%s", day)
	if p.bus != nil {
		data := map[string]any{"day": day}
		for folder, n := range counts {
			data[folder] = n
		}
		p.bus.Publish(events.EventDigestUpdated, data)
	}
	return nil
}

func (p *Publisher) renderDigestSection(counts map[string]int) string {
	capturesFolder := filepath.Base(p.capturesDir)
	return fmt.Sprintf(`
## 📥 Capture Digest

- TODOs: %d
- Ideas: %d
- Voice Notes: %d
- Links: %d
- Quick Notes: %d
- Miscellaneous: %d

### Recent Captures
![[%s/TODOs]]
![[%s/Ideas]]
`,
		counts["TODOs"], counts["Ideas"], counts["Voice Notes"],
		counts["Links"], counts["Quick Notes"], counts[defaultFolder],
		capturesFolder, capturesFolder)
}
