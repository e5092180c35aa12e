package admin

import "time"

const (
	panelGroupsPageSize       = 6
	panelVerificationPageSize = 5
	panelMaxInputLen          = 4096
	defaultCloseTime          = "21:00"
)

const (
	panelSessionTTL      = time.Hour
	panelCleanupInterval = 5 * time.Minute
	panelTypingInterval  = 7 * time.Second
)

var panelCloseTimeOptions = []string{
	"12:00", "15:00", "18:00", "19:00",
	"20:00", "21:00", "22:00", "23:00",
}
