package transfer

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/MrSnakeDoc/stash/internal/domain"
)

// UnsortedFolder holds bookmarks without tags in the HTML export.
const UnsortedFolder = "Unsorted"

// ExportHTML writes manual bookmarks as a Netscape bookmark file, one
// folder per first tag in order of first appearance, untagged ones last.
func ExportHTML(w io.Writer, bookmarks []domain.Bookmark) error {
	var (
		order   []string
		folders = map[string][]domain.Bookmark{}
	)
	for _, b := range manualOnly(bookmarks) {
		folder := UnsortedFolder
		if len(b.Tags) > 0 {
			folder = b.Tags[0]
		}
		if _, ok := folders[folder]; !ok && folder != UnsortedFolder {
			order = append(order, folder)
		}
		folders[folder] = append(folders[folder], b)
	}
	if _, ok := folders[UnsortedFolder]; ok {
		order = append(order, UnsortedFolder)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "<!DOCTYPE NETSCAPE-Bookmark-file-1>")
	fmt.Fprintln(bw, `<META HTTP-EQUIV="Content-Type" CONTENT="text/html; charset=UTF-8">`)
	fmt.Fprintln(bw, "<TITLE>Stash Bookmarks</TITLE>")
	fmt.Fprintln(bw, "<H1>Stash Bookmarks</H1>")
	fmt.Fprintln(bw, "<DL><p>")
	for _, folder := range order {
		fmt.Fprintf(bw, "  <DT><H3>%s</H3>\n", html.EscapeString(folder))
		fmt.Fprintln(bw, "  <DL><p>")
		for _, b := range folders[folder] {
			fmt.Fprintf(bw, "    <DT><A HREF=\"%s\" ADD_DATE=\"%d\"",
				html.EscapeString(b.URL), b.CreatedAt.Unix())
			if len(b.Tags) > 0 {
				fmt.Fprintf(bw, " TAGS=\"%s\"", html.EscapeString(strings.Join(b.Tags, ",")))
			}
			fmt.Fprintf(bw, ">%s</A>\n", html.EscapeString(b.Title))
			if b.Description != "" {
				fmt.Fprintf(bw, "    <DD>%s\n", html.EscapeString(b.Description))
			}
		}
		fmt.Fprintln(bw, "  </DL><p>")
	}
	fmt.Fprintln(bw, "</DL><p>")
	return bw.Flush()
}

// ParseHTML reads a Netscape bookmark file as written by browsers. The
// enclosing folder name, lowercased, becomes a tag (except our own
// Unsorted folder); a TAGS attribute adds more. Links that are not
// http(s) come back with an empty URL for the import to count as invalid.
func ParseHTML(r io.Reader) ([]domain.NewBookmark, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []domain.NewBookmark
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !strings.HasPrefix(strings.ToLower(href), "http") {
			href = ""
		}

		var tags []string
		if folder := folderOf(a); folder != "" && !strings.EqualFold(folder, UnsortedFolder) {
			tags = append(tags, strings.ToLower(folder))
		}
		if extra := a.AttrOr("tags", ""); extra != "" {
			tags = append(tags, strings.Split(extra, ",")...)
		}

		nb := domain.NewBookmark{
			URL:        href,
			Title:      strings.TrimSpace(a.Text()),
			Tags:       tags,
			SkipEnrich: true,
		}
		if secs, err := strconv.ParseInt(a.AttrOr("add_date", ""), 10, 64); err == nil && secs > 0 {
			nb.PublishedAt = time.Unix(secs, 0).UTC()
		}
		if dd := a.Closest("dt").Next(); dd.Is("dd") {
			nb.Description = strings.TrimSpace(dd.Contents().First().Text())
		}
		out = append(out, nb)
	})
	return out, nil
}

// folderOf returns the H3 heading of the DL that directly contains a.
func folderOf(a *goquery.Selection) string {
	dl := a.Closest("dl")
	if dl.Length() == 0 {
		return ""
	}
	h3 := dl.Parent().ChildrenFiltered("h3").First()
	if h3.Length() == 0 {
		h3 = dl.PrevFiltered("h3")
	}
	return strings.TrimSpace(h3.Text())
}
