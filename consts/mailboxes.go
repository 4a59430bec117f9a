package consts

// MailboxDelimiter separates hierarchy levels in both protocol and
// backend folder names.
const MailboxDelimiter = '/'

// Backend storage names of the special folders. Everything else is
// stored hex-encoded.
const (
	SysInbox = "inbox"
	SysDraft = "draft"
	SysSent  = "sent"
	SysTrash = "trash"
	SysJunk  = "junk"
)

// SysSpecialFolders lists the four non-inbox special folders in the
// order their special-use attributes are advertised.
var SysSpecialFolders = []string{SysDraft, SysSent, SysTrash, SysJunk}
