package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	batchRe = regexp.MustCompile(`^B(\d{4})-(\d{4,})$`)
	lotRe   = regexp.MustCompile(`^L(\d{4})-(\d{4,})(?:-([A-Z]))?$`)
	blendRe = regexp.MustCompile(`^BLEND-(\d{4})-(\d{3,})$`)
)

// LotKind tells how a lot came to be.
type LotKind string

const (
	LotKindDirect LotKind = "DIRECT"
	LotKindSplit  LotKind = "SPLIT"
	LotKindBlend  LotKind = "BLEND"
)

// maxSplitParts is the number of single-letter suffixes available.
const maxSplitParts = 26

// ParsedLotCode holds the structured data recovered from a lot code.
type ParsedLotCode struct {
	Kind   LotKind
	Year   int
	Seq    int
	Suffix string // split suffix, e.g. "B"
	Parent string // parent lot code for split lots
}

// BatchNumber formats e.g. B2026-0007.
func BatchNumber(year int, seq int64) string {
	return fmt.Sprintf("B%d-%04d", year, seq)
}

// DirectLotCode formats e.g. L2026-0007.
func DirectLotCode(year int, seq int64) string {
	return fmt.Sprintf("L%d-%04d", year, seq)
}

// BlendLotCode formats e.g. BLEND-2026-003. Blends have their own counter.
func BlendLotCode(year int, seq int64) string {
	return fmt.Sprintf("BLEND-%d-%03d", year, seq)
}

// SplitLotCode appends the part letter to a direct lot code: L2026-0007-A.
func SplitLotCode(parent string, index int) (string, error) {
	if index < 0 || index >= maxSplitParts {
		return "", fmt.Errorf("split index %d out of range", index)
	}
	parsed, err := ParseLotCode(parent)
	if err != nil {
		return "", err
	}
	if parsed.Kind != LotKindDirect {
		return "", fmt.Errorf("only direct lots can be split, got %s lot %q", parsed.Kind, parent)
	}
	return fmt.Sprintf("%s-%c", parent, 'A'+index), nil
}

// ParseLotCode recovers kind, year and sequence from a lot code.
func ParseLotCode(raw string) (ParsedLotCode, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))

	if m := blendRe.FindStringSubmatch(s); m != nil {
		year, seq, err := yearSeq(m[1], m[2])
		if err != nil {
			return ParsedLotCode{}, err
		}
		return ParsedLotCode{Kind: LotKindBlend, Year: year, Seq: seq}, nil
	}

	if m := lotRe.FindStringSubmatch(s); m != nil {
		year, seq, err := yearSeq(m[1], m[2])
		if err != nil {
			return ParsedLotCode{}, err
		}
		if m[3] == "" {
			return ParsedLotCode{Kind: LotKindDirect, Year: year, Seq: seq}, nil
		}
		return ParsedLotCode{
			Kind:   LotKindSplit,
			Year:   year,
			Seq:    seq,
			Suffix: m[3],
			Parent: strings.TrimSuffix(s, "-"+m[3]),
		}, nil
	}

	return ParsedLotCode{}, fmt.Errorf("unable to parse lot code: %q", raw)
}

// ParseBatchNumber recovers year and sequence from a batch number.
func ParseBatchNumber(raw string) (year int, seq int, err error) {
	m := batchRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(raw)))
	if m == nil {
		return 0, 0, fmt.Errorf("unable to parse batch number: %q", raw)
	}
	return yearSeq(m[1], m[2])
}

func yearSeq(yearStr, seqStr string) (int, int, error) {
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return 0, 0, err
	}
	seq, err := strconv.Atoi(seqStr)
	if err != nil {
		return 0, 0, err
	}
	return year, seq, nil
}
