package handler

import (
	"bufio"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const defaultLogLines = 500

type LogsHandler struct {
	Fs   afero.Fs
	File string
	Log  *logrus.Entry
}

func parseInt(raw string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(raw))
}

// Tail returns the last lines of the log file as plain text. lines=0 returns
// the whole file.
func (h *LogsHandler) Tail(c *gin.Context) {
	if h.File == "" {
		c.String(http.StatusNotFound, "Logging to file is disabled")
		return
	}
	limit := defaultLogLines
	if raw, found := c.GetQuery("lines"); found {
		n, err := parseInt(raw)
		if err != nil || n < 0 {
			c.String(http.StatusBadRequest, "Invalid lines parameter")
			return
		}
		limit = n
	}

	fs := h.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f, err := fs.Open(h.File)
	if err != nil {
		h.Log.WithError(err).Error("read log file failed")
		c.String(http.StatusInternalServerError, "Error reading log file")
		return
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if limit > 0 && len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := sc.Err(); err != nil {
		h.Log.WithError(err).Error("scan log file failed")
		c.String(http.StatusInternalServerError, "Error reading log file")
		return
	}

	out := strings.Join(lines, "\n")
	if len(lines) > 0 {
		out += "\n"
	}
	c.String(http.StatusOK, out)
}
