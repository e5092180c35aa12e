package admin

type panelPage string

const (
	panelPageHome            panelPage = "Home"
	panelPageGroupsList      panelPage = "GroupsList"
	panelPageGroupDetail     panelPage = "GroupDetail"
	panelPageCloseTime       panelPage = "CloseTime"
	panelPageTopicPrompt     panelPage = "TopicPrompt"
	panelPageSlots           panelPage = "Slots"
	panelPageSlotPrompt      panelPage = "SlotPrompt"
	panelPageConfirmDelete   panelPage = "ConfirmDelete"
	panelPageVerification    panelPage = "Verification"
	panelPageBroadcastPrompt panelPage = "BroadcastPrompt"
	panelPageRestorePrompt   panelPage = "RestorePrompt"
	panelPageConfirmClose    panelPage = "ConfirmClose"
)

const (
	panelActionOpenGroups       = "open_groups"
	panelActionGroupsPageNext   = "groups_page_next"
	panelActionGroupsPagePrev   = "groups_page_prev"
	panelActionSelectGroup      = "select_group"
	panelActionToggleActive     = "toggle_active"
	panelActionToggleNight      = "toggle_night"
	panelActionOpenCloseTime    = "open_close_time"
	panelActionSetCloseTime     = "set_close_time"
	panelActionOpenTopic        = "open_topic"
	panelActionOpenSlots        = "open_slots"
	panelActionAddSlot          = "add_slot"
	panelActionDeleteSlot       = "delete_slot"
	panelActionPostNow          = "post_now"
	panelActionCloseNow         = "close_now"
	panelActionOpenDelete       = "open_delete"
	panelActionDeleteYes        = "delete_yes"
	panelActionDeleteNo         = "delete_no"
	panelActionOpenVerification = "open_verification"
	panelActionApprove          = "approve"
	panelActionReject           = "reject"
	panelActionOpenBroadcast    = "open_broadcast"
	panelActionOpenRestore      = "open_restore"
	panelActionBack             = "back"
	panelActionClose            = "close"
	panelActionCloseConfirm     = "close_confirm"
)

// panelModeRestore makes the groups list lead to the restore vote prompt
// instead of the group detail page.
const panelModeRestore = "restore"

type panelState struct {
	SessionID   int64     `json:"session_id"`
	Page        panelPage `json:"page"`
	UserID      int64     `json:"user_id"`
	Language    string    `json:"language"`
	ListPage    int       `json:"list_page"`
	ListMode    string    `json:"list_mode,omitempty"`
	GroupID     int64     `json:"group_id,omitempty"`
	PromptError string    `json:"prompt_error,omitempty"`
	Notice      string    `json:"notice,omitempty"`
}

type panelCommand struct {
	Action  string `json:"action"`
	GroupID int64  `json:"group_id,omitempty"`
	SlotID  int64  `json:"slot_id,omitempty"`
	Value   string `json:"value,omitempty"`
}
