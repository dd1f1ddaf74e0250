// Package metakb answers whether a normalized allele appears in the MetaKB
// evidence corpus. The corpus is a directory of CDM JSON exports; the allele
// identifiers found in it are loaded once into an on-disk membership store.
package metakb

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/teranos/anvil/errors"
)

// IDPrefix marks allele identifiers in the corpus
const IDPrefix = "ga4gh:VA"

// CorpusFiles returns the *.json files in dir, sorted
func CorpusFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", dir)
	}
	out := files[:0]
	for _, f := range files {
		if info, err := os.Stat(f); err == nil && info.Mode().IsRegular() {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out, nil
}

// IDs calls fn for every "id" value, at any depth, that starts with IDPrefix
// in every corpus file of dir. Duplicates are reported as found. An
// unreadable or malformed file is an error.
func IDs(ctx context.Context, dir string, fn func(id string) error) error {
	files, err := CorpusFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.WithHint(
			errors.NewNotFoundError("no *.json corpus files in %s", dir),
			"set metakb_urls to download the corpus, or copy the CDM exports into metakb_directory",
		)
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return errors.Wrapf(err, "failed to read corpus file %s", file)
		}
		value, typ, _, err := jsonparser.Get(data)
		if err != nil {
			return errors.Wrapf(errors.ErrInvalidRequest, "corpus file %s is not JSON: %v", filepath.Base(file), err)
		}
		if err := walk(value, typ, fn); err != nil {
			return errors.Wrapf(err, "corpus file %s", filepath.Base(file))
		}
	}
	return nil
}

func walk(data []byte, typ jsonparser.ValueType, fn func(string) error) error {
	switch typ {
	case jsonparser.Object:
		return jsonparser.ObjectEach(data, func(key, value []byte, vt jsonparser.ValueType, _ int) error {
			if vt == jsonparser.String && string(key) == "id" {
				id, err := jsonparser.ParseString(value)
				if err != nil {
					return err
				}
				if strings.HasPrefix(id, IDPrefix) {
					return fn(id)
				}
				return nil
			}
			return walk(value, vt, fn)
		})

	case jsonparser.Array:
		var walkErr error
		_, err := jsonparser.ArrayEach(data, func(value []byte, vt jsonparser.ValueType, _ int, err error) {
			if walkErr != nil {
				return
			}
			if err != nil {
				walkErr = err
				return
			}
			walkErr = walk(value, vt, fn)
		})
		if walkErr != nil {
			return walkErr
		}
		return err
	}
	return nil
}
