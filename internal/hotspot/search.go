package hotspot

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	hserrors "github.com/arkilian/hotspot/internal/errors"
	"github.com/arkilian/hotspot/internal/frame"
	"github.com/arkilian/hotspot/pkg/types"
)

// Across selects which side of a row's identity a search matches against.
type Across string

const (
	AcrossKeys   Across = "keys"
	AcrossValues Across = "values"
)

// SearchType selects how terms must match.
type SearchType string

const (
	// SearchAny accepts a row when any term occurs in its identity vector.
	SearchAny SearchType = "any"
	// SearchAll accepts a row when its sorted identity vector equals the
	// sorted terms exactly.
	SearchAll SearchType = "all"
)

// SearchOptions parameterises Search.
type SearchOptions struct {
	// Terms are strings or integers; integers match their base-10 form.
	Terms []interface{}

	// Across defaults to AcrossKeys.
	Across Across

	// Type defaults to SearchAny.
	Type SearchType

	// Interactions restricts rows to these interaction counts. Nil keeps
	// every depth.
	Interactions []int

	// MinRows drops rows whose n_rows is below it.
	MinRows int64
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.Across == "" {
		o.Across = AcrossKeys
	}
	if o.Type == "" {
		o.Type = SearchAny
	}
	return o
}

// Validate checks the options and returns the terms coerced to strings.
func (o SearchOptions) Validate() ([]string, error) {
	o = o.withDefaults()
	if o.Across != AcrossKeys && o.Across != AcrossValues {
		return nil, hserrors.NewConfigError(hserrors.CodeInvalidEnum,
			fmt.Sprintf("invalid search_across %q: valid values are %q, %q", o.Across, AcrossKeys, AcrossValues)).
			WithDetails(map[string]interface{}{"valid": []string{string(AcrossKeys), string(AcrossValues)}})
	}
	if o.Type != SearchAny && o.Type != SearchAll {
		return nil, hserrors.NewConfigError(hserrors.CodeInvalidEnum,
			fmt.Sprintf("invalid search_type %q: valid values are %q, %q", o.Type, SearchAny, SearchAll)).
			WithDetails(map[string]interface{}{"valid": []string{string(SearchAny), string(SearchAll)}})
	}
	if len(o.Terms) == 0 {
		return nil, hserrors.NewConfigError(hserrors.CodeInvalidSearchTerm, "at least one search term is required")
	}

	terms := make([]string, len(o.Terms))
	for i, term := range o.Terms {
		switch v := term.(type) {
		case string:
			terms[i] = v
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			terms[i] = types.FormatValue(v)
		default:
			return nil, hserrors.NewConfigError(hserrors.CodeInvalidSearchTerm,
				fmt.Sprintf("search term %v has type %T: terms must be strings or integers", term, term)).
				WithDetails(map[string]interface{}{"term": term})
		}
	}
	return terms, nil
}

// Search filters an assembled output table by depth, group size, and the
// keys or values of each row's merged identity (combo_dict, grouped_by_dict
// and time_period_dict). The input is never modified and the result is a
// valid input to another Search.
//
// Zero matches yield the empty table together with an EMPTY_RESULT error
// echoing the parameters.
func Search(t *frame.Table, opts SearchOptions) (*frame.Table, error) {
	terms, err := opts.Validate()
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	if missing := t.MissingColumns(InteractionCountColumn, frame.SizeColumn, ComboDictColumn); len(missing) > 0 {
		return nil, hserrors.NewConfigError(hserrors.CodeMissingColumns,
			"search input is not an assembled output table: missing "+strings.Join(missing, ", ")).
			WithDetails(map[string]interface{}{"missing": missing})
	}

	depths := make(map[int64]bool, len(opts.Interactions))
	for _, d := range opts.Interactions {
		depths[int64(d)] = true
	}
	termSet := make(map[string]bool, len(terms))
	for _, term := range terms {
		termSet[term] = true
	}
	sortedTerms := append([]string(nil), terms...)
	sort.Strings(sortedTerms)

	var matchErr error
	out := t.Filter(func(i int) bool {
		if matchErr != nil {
			return false
		}
		depth, _ := types.ToInt64(t.Value(i, InteractionCountColumn))
		if opts.Interactions != nil && !depths[depth] {
			return false
		}
		size, _ := types.ToInt64(t.Value(i, frame.SizeColumn))
		if size < opts.MinRows {
			return false
		}

		identity, err := rowIdentity(t, i)
		if err != nil {
			matchErr = err
			return false
		}
		var vector []string
		if opts.Across == AcrossKeys {
			vector = identity.Keys()
		} else {
			vector = identity.Values()
		}

		if opts.Type == SearchAll {
			return slices.Equal(vector, sortedTerms)
		}
		for _, v := range vector {
			if termSet[v] {
				return true
			}
		}
		return false
	})
	if matchErr != nil {
		return nil, matchErr
	}

	if out.Len() == 0 {
		return out, hserrors.NewSearchError(hserrors.CodeEmptyResult,
			fmt.Sprintf("no rows match terms %v (across=%s, type=%s, interactions=%v, n_row_minimum=%d)",
				terms, opts.Across, opts.Type, opts.Interactions, opts.MinRows)).
			WithDetails(map[string]interface{}{
				"terms":         terms,
				"across":        string(opts.Across),
				"type":          string(opts.Type),
				"interactions":  opts.Interactions,
				"n_row_minimum": opts.MinRows,
			})
	}
	return out, nil
}

// rowIdentity merges the identity dicts of row i.
func rowIdentity(t *frame.Table, i int) (types.Dict, error) {
	var dicts []types.Dict
	for _, col := range []string{ComboDictColumn, GroupedByDictColumn, TimePeriodDictColumn} {
		if !t.HasColumn(col) {
			continue
		}
		d, err := dictCell(t.Value(i, col))
		if err != nil {
			return nil, fmt.Errorf("row %d column %s: %w", i, col, err)
		}
		dicts = append(dicts, d)
	}
	return types.MergeDicts(dicts...), nil
}

// dictCell reads an identity cell, accepting decoded dicts or their
// canonical string encoding.
func dictCell(v interface{}) (types.Dict, error) {
	switch d := v.(type) {
	case nil:
		return types.Dict{}, nil
	case types.Dict:
		return d, nil
	case map[string]string:
		return types.Dict(d), nil
	case string:
		return types.DecodeDict(d)
	default:
		return nil, fmt.Errorf("%w: unexpected cell type %T", types.ErrInvalidDict, v)
	}
}
