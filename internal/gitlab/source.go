// Package gitlab adapts one GitLab merge request into the comment source
// and reviewer gate the loop consumes.
package gitlab

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/time/rate"

	"github.com/reviewloop/internal/config"
	"github.com/reviewloop/pkg/models"
)

// perPage is the discussion page size.
const perPage = 100

// Client talks to a single merge request. All API calls go through a shared
// rate limiter so polling never hammers the instance.
type Client struct {
	gl      *gitlab.Client
	project string
	mr      int
	bots    map[string]bool
	limiter *rate.Limiter
	log     zerolog.Logger

	mu          sync.Mutex
	discussions map[string]string // note ID -> discussion ID
}

// NewClient builds a Client from the configured instance URL, token, and
// bot author list.
func NewClient(cfg config.GitLab, bots config.Bots, log zerolog.Logger) (*Client, error) {
	gl, err := gitlab.NewClient(cfg.Token,
		gitlab.WithBaseURL(strings.TrimRight(cfg.URL, "/")+"/api/v4"))
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}

	botSet := make(map[string]bool, len(bots.Authors))
	for _, author := range bots.Authors {
		botSet[strings.ToLower(author)] = true
	}

	return &Client{
		gl:      gl,
		project: cfg.Project,
		mr:      cfg.MR,
		bots:    botSet,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		log:     log.With().Str("component", "gitlab").Logger(),

		discussions: make(map[string]string),
	}, nil
}

// TargetID identifies the merge request this client is bound to, in the
// form used as the session key.
func (c *Client) TargetID() string {
	return fmt.Sprintf("%s!%d", c.project, c.mr)
}

func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// HeadRevision returns the SHA of the merge request's source branch head.
func (c *Client) HeadRevision(ctx context.Context) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	mr, _, err := c.gl.MergeRequests.GetMergeRequest(c.project, c.mr, nil, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetching merge request %s: %w", c.TargetID(), err)
	}
	return mr.SHA, nil
}

// FetchComments lists every discussion on the merge request and converts
// bot-authored notes into raw comments. The note to discussion mapping is
// cached for later replies.
func (c *Client) FetchComments(ctx context.Context) ([]models.RawComment, error) {
	head, err := c.HeadRevision(ctx)
	if err != nil {
		return nil, err
	}

	var all []*gitlab.Discussion
	opts := &gitlab.ListMergeRequestDiscussionsOptions{PerPage: perPage}
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		page, resp, err := c.gl.Discussions.ListMergeRequestDiscussions(
			c.project, c.mr, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing discussions on %s: %w", c.TargetID(), err)
		}
		all = append(all, page...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	comments := convertDiscussions(all, head, c.bots)

	c.mu.Lock()
	for _, d := range all {
		for _, note := range d.Notes {
			c.discussions[strconv.Itoa(note.ID)] = d.ID
		}
	}
	c.mu.Unlock()

	c.log.Debug().Int("discussions", len(all)).Int("comments", len(comments)).
		Msg("fetched merge request comments")
	return comments, nil
}

// PostComment posts a top-level note on the merge request.
func (c *Client) PostComment(ctx context.Context, text string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, _, err := c.gl.Notes.CreateMergeRequestNote(c.project, c.mr,
		&gitlab.CreateMergeRequestNoteOptions{Body: gitlab.Ptr(text)},
		gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("posting comment on %s: %w", c.TargetID(), err)
	}
	return nil
}

// ReplyTo posts a reply inside the discussion that contains the given
// comment. The discussion must have been seen by a prior FetchComments.
func (c *Client) ReplyTo(ctx context.Context, commentID, text string) error {
	c.mu.Lock()
	discussionID, ok := c.discussions[commentID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown discussion for comment %s", commentID)
	}

	if err := c.wait(ctx); err != nil {
		return err
	}
	_, _, err := c.gl.Discussions.AddMergeRequestDiscussionNote(c.project, c.mr,
		discussionID,
		&gitlab.AddMergeRequestDiscussionNoteOptions{Body: gitlab.Ptr(text)},
		gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("replying to comment %s on %s: %w", commentID, c.TargetID(), err)
	}
	return nil
}

// convertDiscussions maps bot-authored discussion notes to raw comments.
// A note counts as replied when a different author posted after it in the
// same discussion.
func convertDiscussions(discussions []*gitlab.Discussion, headSHA string, bots map[string]bool) []models.RawComment {
	var out []models.RawComment
	for _, d := range discussions {
		for i, note := range d.Notes {
			if note.System || !bots[strings.ToLower(note.Author.Username)] {
				continue
			}

			c := models.RawComment{
				ID:           strconv.Itoa(note.ID),
				DiscussionID: d.ID,
				Author:       note.Author.Username,
				Body:         note.Body,
				RevisionID:   headSHA,
				Resolved:     note.Resolved,
			}
			if note.CreatedAt != nil {
				c.CreatedAt = *note.CreatedAt
			}
			if pos := note.Position; pos != nil {
				c.FilePath = pos.NewPath
				if c.FilePath == "" {
					c.FilePath = pos.OldPath
				}
				if pos.NewLine > 0 {
					line := pos.NewLine
					c.Line = &line
					c.Side = models.SideNew
				} else if pos.OldLine > 0 {
					line := pos.OldLine
					c.Position = &line
					c.Side = models.SideOld
				}
				if pos.HeadSHA != "" {
					c.RevisionID = pos.HeadSHA
				}
			}
			for _, later := range d.Notes[i+1:] {
				if !later.System && later.Author.Username != note.Author.Username {
					c.Replied = true
					break
				}
			}
			out = append(out, c)
		}
	}
	return out
}
