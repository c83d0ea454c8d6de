package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhouzirui/design-desk/backend/internal/service/figma"
	"github.com/zhouzirui/design-desk/backend/internal/service/fragment"
)

const extractClosing = "Your images have been successfully extracted! Would you like me to review the design now? I also have the ability to analyze the tone and copy of your designs."

// ExtractImages exports the frames under a design link and lists their PNGs.
func (s *Service) ExtractImages(ctx context.Context, designURL string) fragment.Stream {
	return func(yield func(string, error) bool) {
		if !yield("> Extracting images from Figma...\n\n", nil) {
			return
		}

		files, err := s.designFiles()
		if err != nil {
			yield("", err)
			return
		}

		target, err := figma.ParseURL(designURL)
		if err != nil {
			yield("", err)
			return
		}
		if !yield("> Successfully extracted file and node IDs\n\n", nil) {
			return
		}

		file, err := files.GetFile(ctx, target.FileKey)
		if err != nil {
			yield("", err)
			return
		}
		if !yield("> Successfully fetched Figma file data\n\n", nil) {
			return
		}

		frames := figma.ExportFrames(file, target.NodeID)
		if len(frames) == 0 {
			yield("", fmt.Errorf("no frames found to export"))
			return
		}
		if !yield(fmt.Sprintf("> Found %d frame(s) to export\n\n", len(frames)), nil) {
			return
		}

		ids := make([]string, 0, len(frames))
		for _, frame := range frames {
			ids = append(ids, frame.ID)
		}
		images, err := files.RenderImages(ctx, target.FileKey, ids)
		if err != nil {
			yield("", err)
			return
		}
		if !yield("> Successfully retrieved image URLs\n\n", nil) {
			return
		}

		s.log.Info().
			Str("file", target.FileKey).
			Int("frames", len(frames)).
			Int("images", len(images)).
			Msg("extracted design images")

		if !yield(imageTable(frames, images)+"\n\n", nil) {
			return
		}
		yield(extractClosing, nil)
	}
}

func imageTable(frames []*figma.Node, images map[string]string) string {
	var b strings.Builder
	b.WriteString("| Frame Name | Image URL |\n| --- | --- |\n")
	for _, frame := range frames {
		url, ok := images[frame.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "| %s | %s |\n", frame.Name, url)
	}
	return b.String()
}
