package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// SSEHandler returns an echo.HandlerFunc serving the same drain semantics
// as Drain, as a Server-Sent-Events stream, for clients that can't speak
// gRPC. The worker id is taken from the ":worker_id" path parameter.
func SSEHandler(manager *Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		workerID := c.Param("worker_id")
		w, ok := manager.Get(workerID)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown worker %q", workerID))
		}

		resp := c.Response()
		resp.Header().Set(echo.HeaderContentType, "text/event-stream")
		resp.Header().Set("Cache-Control", "no-cache")
		resp.Header().Set("Connection", "keep-alive")
		resp.WriteHeader(http.StatusOK)

		ctx := c.Request().Context()
		messages := w.GetMessageStream(ctx, streamTimeout, true)

		for {
			select {
			case msg, open := <-messages:
				if !open {
					return nil
				}
				if msg.ID == "" {
					fmt.Fprint(resp, "event: ping\ndata: {}\n\n")
					resp.Flush()
					continue
				}
				data, err := json.Marshal(msg)
				if err != nil {
					return err
				}
				fmt.Fprintf(resp, "id: %s\nevent: message\ndata: %s\n\n", msg.ID, data)
				resp.Flush()
			case <-ctx.Done():
				return nil
			}
		}
	}
}
