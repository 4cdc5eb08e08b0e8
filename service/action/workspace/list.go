package workspace

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs/option"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
)

type ListInput struct {
	Path      string `json:"path,omitempty" description:"workspace relative directory, defaults to the root"`
	Recursive bool   `json:"recursive,omitempty" description:"list files recursively"`
	PageSize  int    `json:"pageSize,omitempty" description:"maximum number of entries"`
}

type ListOutput struct {
	Path   string   `json:"path"`
	Assets []*Asset `json:"assets,omitempty"`
}

func (o *ListOutput) Summary() string {
	return fmt.Sprintf("listed %d entries in %s", len(o.Assets), o.display())
}

func (o *ListOutput) display() string {
	if o.Path == "" {
		return "/"
	}
	return o.Path
}

// List lists a workspace directory.
func (s *Service) List(ctx context.Context, input *ListInput, output *ListOutput) error {
	URL, err := s.root.Resolve(input.Path)
	if err != nil {
		return err
	}
	var options []storage.Option
	if input.Recursive {
		options = append(options, option.NewRecursive(true))
	}
	objects, err := s.root.fs.List(ctx, URL, options...)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", input.Path, err)
	}
	self := strings.TrimRight(url.Path(URL), "/")
	output.Path = s.root.Relative(URL)
	for _, object := range objects {
		objectPath := strings.TrimRight(url.Path(object.URL()), "/")
		if object.IsDir() && objectPath == self {
			continue
		}
		output.Assets = append(output.Assets, &Asset{
			Path:        s.root.Relative(object.URL()),
			Name:        path.Base(objectPath),
			IsDir:       object.IsDir(),
			Mode:        object.Mode().String(),
			Size:        object.Size(),
			ModTime:     object.ModTime(),
			ContentType: ContentType(objectPath),
		})
		if input.PageSize > 0 && len(output.Assets) >= input.PageSize {
			break
		}
	}
	return nil
}
