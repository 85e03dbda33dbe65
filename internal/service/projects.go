package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MimeLyc/article-narrator/internal/persistence"
)

// ErrUnknownSection is returned when an edit names a section the project
// does not have.
var ErrUnknownSection = errors.New("unknown section")

// LoadProject returns the stored video data of a project.
func (n *Narrator) LoadProject(projectID string) (*persistence.ProjectDocument, error) {
	return n.files.LoadProject(projectID)
}

// UpdateSubtitleLines replaces the hand-edited subtitle lines of one
// section and retimes the whole project from the stored durations. Blank
// lines are dropped; an empty result restores automatic splitting.
func (n *Narrator) UpdateSubtitleLines(ctx context.Context, projectID, sectionID string, lines []string) (*persistence.ProjectDocument, error) {
	unlock := n.lockProject(projectID)
	defer unlock()

	doc, err := n.files.LoadProject(projectID)
	if err != nil {
		return nil, err
	}
	if !doc.HasSection(sectionID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSection, sectionID)
	}

	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	doc.SetCustomLines(sectionID, cleaned)
	data := doc.Recompose(n.now())

	if _, err := n.files.SaveSubtitles(projectID, data.Entries); err != nil {
		return nil, err
	}
	if _, err := n.files.SaveProject(projectID, doc); err != nil {
		return nil, err
	}
	if n.index != nil {
		if err := n.index.UpsertProject(ctx, doc.Summary(projectID, "")); err != nil {
			return nil, err
		}
	}
	n.logger.Info("project %s: section %s now has %d custom lines", projectID, sectionID, len(cleaned))
	return doc, nil
}
