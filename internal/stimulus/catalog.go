package stimulus

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/satindergrewal/tonalstudy/internal/fault"
)

// PoolSize is the number of stimuli each condition must provide.
const PoolSize = 5

// PoolSizeMessage is printed verbatim when a pool has the wrong size.
const PoolSizeMessage = "need exactly 5 tonal and 5 atonal files in the stimulus subdirectories"

// ErrPoolSizeMismatch is returned when either pool does not hold exactly
// PoolSize eligible files. Compare with errors.Is.
var ErrPoolSizeMismatch = fault.New(fault.KindCatalog, fault.CodePoolSizeMismatch, PoolSizeMessage)

// Extensions lists the media types the audio engine can decode.
var Extensions = []string{".wav", ".mp3", ".ogg"}

// Condition is the stimulus category. It decides the duration cap.
type Condition string

const (
	Tonal  Condition = "tonal"
	Atonal Condition = "atonal"
)

// Item is one stimulus. Ref is the media locator relative to the stimulus
// root and doubles as the item's identity.
type Item struct {
	Ref       string
	Condition Condition
}

// MaxDuration returns the playback cap for this item: atonalCap for Atonal
// stimuli, zero (no cap) for Tonal ones.
func (it Item) MaxDuration(atonalCap time.Duration) time.Duration {
	if it.Condition == Atonal {
		return atonalCap
	}
	return 0
}

// Plan is the randomized trial order for one session.
type Plan []Item

// Counts returns how many items of each condition the plan holds.
func (p Plan) Counts() map[Condition]int {
	counts := make(map[Condition]int, 2)
	for _, it := range p {
		counts[it.Condition]++
	}
	return counts
}

// Refs returns the plan's locators in trial order.
func (p Plan) Refs() []string {
	refs := make([]string, len(p))
	for i, it := range p {
		refs[i] = it.Ref
	}
	return refs
}

// Eligible reports whether name has a supported media extension.
func Eligible(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Build filters both pools by extension and returns a freshly shuffled plan.
// Each call is an independent random draw.
func Build(tonal, atonal []string) (Plan, error) {
	return BuildWith(nil, tonal, atonal)
}

// BuildWith is Build with an explicit random source. A nil source uses the
// process-wide generator.
func BuildWith(r *rand.Rand, tonal, atonal []string) (Plan, error) {
	ton := filterEligible(tonal)
	aton := filterEligible(atonal)
	if len(ton) != PoolSize || len(aton) != PoolSize {
		return nil, fmt.Errorf("tonal pool has %d, atonal pool has %d: %w", len(ton), len(aton), ErrPoolSizeMismatch)
	}

	plan := make(Plan, 0, 2*PoolSize)
	for _, ref := range ton {
		plan = append(plan, Item{Ref: ref, Condition: Tonal})
	}
	for _, ref := range aton {
		plan = append(plan, Item{Ref: ref, Condition: Atonal})
	}

	swap := func(i, j int) { plan[i], plan[j] = plan[j], plan[i] }
	if r != nil {
		r.Shuffle(len(plan), swap)
	} else {
		rand.Shuffle(len(plan), swap)
	}
	return plan, nil
}

// LoadDir reads <root>/tonal and <root>/atonal and builds a plan whose refs
// are relative to root (e.g. "tonal/t1.wav").
func LoadDir(root string) (Plan, error) {
	tonal, err := listPool(root, string(Tonal))
	if err != nil {
		return nil, err
	}
	atonal, err := listPool(root, string(Atonal))
	if err != nil {
		return nil, err
	}
	return Build(tonal, atonal)
}

// Path resolves a plan ref against the stimulus root.
func Path(root, ref string) string {
	return filepath.Join(root, filepath.FromSlash(ref))
}

func listPool(root, sub string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, sub))
	if err != nil {
		return nil, fmt.Errorf("read %s pool: %v: %w", sub, err, ErrPoolSizeMismatch)
	}
	refs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		refs = append(refs, sub+"/"+e.Name())
	}
	sort.Strings(refs)
	return refs, nil
}

func filterEligible(pool []string) []string {
	out := make([]string, 0, len(pool))
	for _, ref := range pool {
		if Eligible(ref) {
			out = append(out, ref)
		}
	}
	return out
}
