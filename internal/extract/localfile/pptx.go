package localfile

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var slideEntryRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// pptxText pulls the text runs out of each slide's XML. A .pptx is a zip of
// DrawingML parts; the visible text lives in <a:t> elements.
func pptxText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = zr.Close()
	}()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideEntryRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slide{num: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var blocks []string
	for _, s := range slides {
		text, err := slideRuns(s.file)
		if err != nil {
			return "", fmt.Errorf("slide %d: %w", s.num, err)
		}
		if text == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[Slide %d]\n%s", s.num, text))
	}
	return strings.Join(blocks, "\n\n"), nil
}

func slideRuns(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer func() {
		_ = rc.Close()
	}()

	dec := xml.NewDecoder(rc)
	var runs []string
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			// Namespace prefixes vary by producer; match the local name.
			inText = t.Name.Local == "t"
		case xml.EndElement:
			inText = false
		case xml.CharData:
			if inText {
				if s := strings.TrimSpace(string(t)); s != "" {
					runs = append(runs, s)
				}
			}
		}
	}
	return strings.Join(runs, "\n"), nil
}
