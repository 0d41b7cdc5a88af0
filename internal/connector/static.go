package connector

import (
	"context"
	"iter"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// Static serves a fixed list of fragments, such as manually entered leads.
// Ten fragments make up one page so resumes behave like a paged source.
type Static struct {
	fragments []Fragment
}

// NewStatic creates a connector over fragments.
func NewStatic(fragments []Fragment) *Static {
	return &Static{fragments: fragments}
}

const staticPageSize = 10

func (s *Static) Source() model.Source { return model.SourceManual }

func (s *Static) Login(context.Context, Credentials) error { return nil }

func (s *Static) Search(ctx context.Context, req SearchRequest) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		limit := req.Limit
		if limit <= 0 {
			limit = len(s.fragments)
		}
		yielded := 0
		for page := req.startPage(); ; page++ {
			lo := (page - 1) * staticPageSize
			if lo >= len(s.fragments) || yielded >= limit {
				return
			}
			hi := min(lo+staticPageSize, len(s.fragments))
			count := 0
			for _, f := range s.fragments[lo:hi] {
				if ctx.Err() != nil || yielded >= limit {
					return
				}
				f.Page = page
				if !yield(f, nil) {
					return
				}
				yielded++
				count++
			}
			req.pageDone(PageDone{Page: page, Yielded: count})
		}
	}
}

// manualFile is the layout of a manual lead import file.
type manualFile struct {
	Leads []Fragment `yaml:"leads"`
}

// LoadManual reads fragments from a YAML or JSON file. The file holds either a
// top-level list or a mapping with a "leads" list.
func LoadManual(path string) ([]Fragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "connector: read %s", path)
	}

	var list []Fragment
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var file manualFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "connector: parse %s", path)
	}
	return file.Leads, nil
}
