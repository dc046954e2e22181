package models

import "time"

// ItemKind classifies a single item screen.
type ItemKind string

const (
	KindWeapon      ItemKind = "weapon"
	KindShield      ItemKind = "shield"
	KindOrdnance    ItemKind = "ordnance"
	KindClassMod    ItemKind = "class_mod"
	KindEnhancement ItemKind = "enhancement"
	KindArtifact    ItemKind = "artifact"
	KindOther       ItemKind = "other"
	KindUnknown     ItemKind = "unknown"
)

// Element is an elemental damage tag.
type Element string

const (
	ElementIncendiary Element = "incendiary"
	ElementCorrosive  Element = "corrosive"
	ElementCryo       Element = "cryo"
	ElementShock      Element = "shock"
	ElementRadiation  Element = "radiation"
	ElementNone       Element = "none"
	ElementUnknown    Element = "unknown"
)

// Verdict classifies a whole batch.
type Verdict string

const (
	VerdictWeaponScreenshot   Verdict = "weapon_screenshot"
	VerdictBorderlandsNonItem Verdict = "borderlands_non_item"
	VerdictNotBorderlands     Verdict = "not_borderlands"
	VerdictUncertain          Verdict = "uncertain"
)

// ExtractionItem is the per-image result. Nullable scalars are pointers and are
// always rendered, as null when unknown.
type ExtractionItem struct {
	Slot         int       `json:"slot"`
	ItemKind     ItemKind  `json:"item_kind"`
	Name         *string   `json:"name"`
	Manufacturer *string   `json:"manufacturer"`
	Level        *int      `json:"level"`
	DPS          *float64  `json:"dps"`
	Damage       *string   `json:"damage"`
	Rarity       *string   `json:"rarity"`
	Elements     []Element `json:"elements"`
	Notes        []string  `json:"notes"`
	Confidence   float64   `json:"confidence"`
}

// ExtractionBatch is the result of one extraction run or merge.
type ExtractionBatch struct {
	OK         bool             `json:"ok"`
	ImageCount int              `json:"image_count"`
	Mode       string           `json:"mode"`
	Verdict    Verdict          `json:"verdict"`
	Confidence float64          `json:"confidence"`
	Reason     string           `json:"reason"`
	Items      []ExtractionItem `json:"items"`
}

// CacheEntryVersion tags the persisted layout of CacheEntry.
const CacheEntryVersion = 1

// CacheEntry is the persisted form of one ExtractionItem.
type CacheEntry struct {
	Version     int            `json:"v"`
	SavedAt     time.Time      `json:"saved_at"`
	Fingerprint string         `json:"sha256"`
	Item        ExtractionItem `json:"item"`
}

// PlaceholderItem is emitted for a slot that was not analyzed.
func PlaceholderItem(slot int, note string) ExtractionItem {
	item := ExtractionItem{
		Slot:     slot,
		ItemKind: KindUnknown,
		Elements: []Element{ElementUnknown},
		Notes:    []string{},
	}
	if note != "" {
		item.Notes = append(item.Notes, note)
	}
	return item
}

// Normalize fills defaults so every field renders and clamps confidence to [0,1].
func (it *ExtractionItem) Normalize() {
	if it.ItemKind == "" {
		it.ItemKind = KindUnknown
	}
	if len(it.Elements) == 0 {
		it.Elements = []Element{ElementUnknown}
	}
	if it.Notes == nil {
		it.Notes = []string{}
	}
	it.Confidence = clampUnit(it.Confidence)
}

// Clone returns a deep copy so callers can annotate notes without aliasing.
func (it ExtractionItem) Clone() ExtractionItem {
	out := it
	out.Name = cloneString(it.Name)
	out.Manufacturer = cloneString(it.Manufacturer)
	out.Damage = cloneString(it.Damage)
	out.Rarity = cloneString(it.Rarity)
	if it.Level != nil {
		v := *it.Level
		out.Level = &v
	}
	if it.DPS != nil {
		v := *it.DPS
		out.DPS = &v
	}
	out.Elements = append([]Element(nil), it.Elements...)
	out.Notes = append([]string{}, it.Notes...)
	return out
}

// WithNote returns a copy of the item carrying one more note.
func (it ExtractionItem) WithNote(note string) ExtractionItem {
	out := it.Clone()
	out.Notes = append(out.Notes, note)
	return out
}

// FailedBatch builds a batch in which every slot is a placeholder carrying note.
func FailedBatch(slots []int, mode, reason, note string) ExtractionBatch {
	items := make([]ExtractionItem, 0, len(slots))
	for _, slot := range slots {
		items = append(items, PlaceholderItem(slot, note))
	}
	return ExtractionBatch{
		OK:         false,
		ImageCount: len(slots),
		Mode:       mode,
		Verdict:    VerdictUncertain,
		Confidence: 0,
		Reason:     reason,
		Items:      items,
	}
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
