package hub

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"ucihub/internal/auth"
	"ucihub/internal/config"
	"ucihub/internal/models"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
)

type submitGamesRequest struct {
	PGNs []string `json:"pgns"`
}

// SubmitGames accepts a batch of PGNs the authenticated client already
// has in hand (exported from whatever site or application it came from),
// tags each one against username's point of view, stores it, and kicks
// off an analysis job the same way the teacher's chess.com-archive fetch
// used to once games were in hand.
func SubmitGames(c *gin.Context) {
	username := strings.ToLower(c.Param("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}

	var req submitGamesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.PGNs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no pgns submitted"})
		return
	}
	if len(req.PGNs) > 1000 {
		req.PGNs = req.PGNs[:1000]
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 25*time.Second)
	defer cancel()

	var out []models.GameLite
	for _, pgn := range req.PGNs {
		tags := parsePGNTags(pgn)
		summary := BuildTagSummary(tags, username)
		if summary.Color == "" {
			// Neither side's name matched username; skip rather than
			// guess a point of view.
			continue
		}

		var when int64
		if summary.UTCDate != "" && summary.UTCTime != "" {
			when = GetUnixTimeStamp(summary.UTCDate, summary.UTCTime, "UTC")
		} else if summary.Date != "" {
			when = GetUnixTimeStamp(summary.Date, "00:00:00", "UTC")
		}

		out = append(out, models.GameLite{
			URL:         summary.Link,
			When:        when,
			Color:       summary.Color,
			Opponent:    summary.Opponent,
			OppRating:   summary.OppRating,
			Result:      summary.Result,
			Rated:       true,
			TimeClass:   timeClassFromControl(summary.TimeControl),
			TimeControl: summary.TimeControl,
			PGN:         pgn,
			ECO:         summary.ECO,
		})
	}

	if len(out) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"username": username,
			"count":    0,
		})
		return
	}

	// ---- look up requester and enforce their weekly quota before any
	// work is saved or enqueued ----

	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	requester, err := enforceWeeklyQuota(ctx, claims.Subject, len(out))
	if err != nil {
		var qe quotaError
		if errors.As(err, &qe) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "weekly analysis quota exceeded",
				"limit": qe.Limit,
				"used":  qe.Used,
			})
			return
		}
		log.Printf("enforceWeeklyQuota failed for sub=%s: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check quota"})
		return
	}

	// ---- load config for batch size + queue URL ----

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("LoadConfig failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load config"})
		return
	}

	// Save games
	if err := saveGames(ctx, username, out); err != nil {
		log.Printf("saveGames failed for %s: %v", username, err)
		// not fatal for the endpoint, we still return a 200 with the count
	}

	// ---- compute batches and create a job row ----

	batchSize := cfg.Engine.NumGames // games per worker/batch
	if batchSize <= 0 {
		batchSize = 100 // sane fallback
	}

	totalGames := len(out)
	totalBatches := (totalGames + batchSize - 1) / batchSize // ceil division

	jobID, err := CreateJob(ctx, username, totalGames, batchSize, totalBatches)
	if err != nil {
		log.Printf("failed to create job for user=%s: %v", username, err)
	}

	// ---- enqueue SQS jobs with that jobID, carrying the requester's
	// plan so batch workers inherit the same engine option ceiling ----

	if cfg.QueueURL == "" {
		log.Printf("QUEUE_URL missing in config; skipping enqueue for user=%s", username)
	} else if jobID == "" {
		log.Printf("jobID empty; skipping enqueue for user=%s", username)
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Printf("failed to load AWS config for SQS: %v", err)
		} else {
			sqsClient := sqs.NewFromConfig(awsCfg)

			for batchIndex := 0; batchIndex < totalBatches; batchIndex++ {
				jobMsg := models.JobMessage{
					User:       username,
					BatchIndex: batchIndex,
					NumGames:   batchSize,
					JobID:      jobID,
					Plan:       requester.Plan,
				}

				body, err := json.Marshal(jobMsg)
				if err != nil {
					log.Printf("failed to marshal JobMessage for user=%s batch=%d: %v",
						username, batchIndex, err)
					continue
				}

				_, err = sqsClient.SendMessage(ctx, &sqs.SendMessageInput{
					QueueUrl:    &cfg.QueueURL,
					MessageBody: aws.String(string(body)),
				})
				if err != nil {
					log.Printf("failed to send SQS message for user=%s batch=%d: %v",
						username, batchIndex, err)
				}
			}
		}
	}

	c.IndentedJSON(http.StatusOK, gin.H{
		"username": username,
		"count":    len(out),
		"job_id":   jobID,
		"batches":  totalBatches,
	})
}

// timeClassFromControl guesses a chess.com-style time class from a PGN
// TimeControl tag's base seconds, since imported PGNs rarely carry one
// directly.
func timeClassFromControl(tc string) string {
	base := tc
	if idx := strings.Index(tc, "+"); idx != -1 {
		base = tc[:idx]
	}
	seconds, err := parsePositiveInt(base)
	if err != nil {
		return ""
	}
	switch {
	case seconds < 180:
		return "bullet"
	case seconds < 600:
		return "blitz"
	case seconds < 1800:
		return "rapid"
	default:
		return "daily"
	}
}

// GetErrorPositions returns a slice of error positions for the given user,
// as computed by FindErrorPositions.
func GetErrorPositions(c *gin.Context) {
	username := strings.ToLower(c.Param("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	positions, err := FindErrorPositions(ctx, username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username":  username,
		"count":     len(positions),
		"positions": positions,
	})
}

// GetGamesCount returns how many games are already stored for a username,
// so the frontend can decide whether a fresh submission is needed.
func GetGamesCount(c *gin.Context) {
	username := strings.ToLower(c.Param("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	count, err := CountGames(ctx, username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username": username,
		"count":    count,
	})
}

// GetJobStatus returns status and batch progress for a job.
func GetJobStatus(c *gin.Context) {
	jobID := c.Param("jobid")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing job id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := FindJobStatus(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job": status,
	})
}
