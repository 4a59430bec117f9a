package imap

import "fmt"

// Response codes select canned status lines. The numbering groups
// untagged/continuation lines (16xx), tagged OK lines (17xx), BAD
// lines (18xx) and NO lines (19xx); it is stable because operators
// grep logs by these numbers.
const (
	codeBye            = 1601
	codeIdling         = 1602
	codeContinue       = 1603
	codeAutologout     = 1604
	codeServiceReady   = 1700
	codeCapabilityOK   = 1701
	codeNoopOK         = 1702
	codeLogoutOK       = 1703
	codeStartTLSOK     = 1704
	codeLoginOK        = 1705
	codeCreateOK       = 1706
	codeDeleteOK       = 1707
	codeRenameOK       = 1708
	codeSubscribeOK    = 1709
	codeUnsubscribeOK  = 1710
	codeListOK         = 1711
	codeXlistOK        = 1712
	codeLsubOK         = 1713
	codeStatusOK       = 1714
	codeAppendOK       = 1715
	codeCheckOK        = 1716
	codeCloseOK        = 1717
	codeUnselectOK     = 1718
	codeSearchOK       = 1719
	codeFetchOK        = 1720
	codeStoreOK        = 1721
	codeCopyOK         = 1722
	codeUIDSearchOK    = 1723
	codeUIDStoreOK     = 1724
	codeUIDCopyOK      = 1725
	codeExpungeOK      = 1726
	codeIdleOK         = 1727
	codeUIDFetchOK     = 1728
	codeIDOK           = 1729
	codeUIDExpungeOK   = 1730
	codeBadCommand     = 1800
	codeBadTLSState    = 1801
	codeNeedSTARTTLS   = 1802
	codeAlreadyAuthed  = 1803
	codeNotAuthed      = 1804
	codeNotSelected    = 1805
	codeReadOnly       = 1806
	codeBadFlags       = 1807
	codeTimeout        = 1811
	codeFileReadError  = 1812
	codeBadSearch      = 1813
	codeTooLong        = 1817
	codeExpectedDone   = 1818
	codeBadUsername    = 1819
	codeBadPassword    = 1820
	codeUserDenied     = 1901
	codeNoMaildir      = 1902
	codeTooManyFails   = 1903
	codeAuthFailed     = 1904
	codeMIDBOffline    = 1905
	codeMIDBRdwr       = 1906
	codeMIDBError      = 1907
	codeParseError     = 1908
	codeSaveFailed     = 1909
	codeBadFolderName  = 1910
	codeReservedCreate = 1911
	codeDelHasSub      = 1912
	codeDelReserved    = 1913
	codeRenReserved    = 1914
	codeNoMemory       = 1915
	codeCopyFailed     = 1916
	codeUIDCopyFailed  = 1917
	codeTooManyResults = 1921
	codeNoMessageFile  = 1923
	codeDelSubFirst    = 1924
	codeNonexistent    = 1925
	codeAlreadyExists  = 1926
)

var codeText = map[int]string{
	codeBye:            "BYE logging out",
	codeIdling:         "+ idling",
	codeContinue:       "+ ready for additional command text",
	codeAutologout:     "BYE disconnected by autologout",
	codeServiceReady:   "OK Service ready",
	codeCapabilityOK:   "OK CAPABILITY completed",
	codeNoopOK:         "OK NOOP completed",
	codeLogoutOK:       "OK LOGOUT completed",
	codeStartTLSOK:     "OK begin TLS negotiation now",
	codeLoginOK:        "OK logged in",
	codeCreateOK:       "OK CREATE completed",
	codeDeleteOK:       "OK DELETE completed",
	codeRenameOK:       "OK RENAME completed",
	codeSubscribeOK:    "OK SUBSCRIBE completed",
	codeUnsubscribeOK:  "OK UNSUBSCRIBE completed",
	codeListOK:         "OK LIST completed",
	codeXlistOK:        "OK XLIST completed",
	codeLsubOK:         "OK LSUB completed",
	codeStatusOK:       "OK STATUS completed",
	codeAppendOK:       "OK <APPENDUID> APPEND completed",
	codeCheckOK:        "OK CHECK completed",
	codeCloseOK:        "OK CLOSE completed",
	codeUnselectOK:     "OK UNSELECT completed",
	codeSearchOK:       "OK SEARCH completed",
	codeFetchOK:        "OK FETCH completed",
	codeStoreOK:        "OK STORE completed",
	codeCopyOK:         "OK <COPYUID> COPY completed",
	codeUIDSearchOK:    "OK UID SEARCH completed",
	codeUIDStoreOK:     "OK UID STORE completed",
	codeUIDCopyOK:      "OK <COPYUID> UID COPY completed",
	codeExpungeOK:      "OK EXPUNGE completed",
	codeIdleOK:         "OK IDLE completed",
	codeUIDFetchOK:     "OK UID FETCH completed",
	codeIDOK:           "OK ID completed",
	codeUIDExpungeOK:   "OK UID EXPUNGE completed",
	codeBadCommand:     "BAD command not supported or parameter error",
	codeBadTLSState:    "BAD TLS negotiation only begin in not authenticated state",
	codeNeedSTARTTLS:   "BAD must issue a STARTTLS command first",
	codeAlreadyAuthed:  "BAD cannot relogin in authenticated state",
	codeNotAuthed:      "BAD cannot process in not authenticated state",
	codeNotSelected:    "BAD can only process in select state",
	codeReadOnly:       "BAD can not store with read-only status",
	codeBadFlags:       "BAD one or more flags not supported",
	codeTimeout:        "BAD timeout",
	codeFileReadError:  "BAD internal error, fail to read file",
	codeBadSearch:      "BAD search parameter syntax error",
	codeTooLong:        "BAD command too long or unacceptable size for literal",
	codeExpectedDone:   "BAD expected DONE",
	codeBadUsername:    "BAD decode username error",
	codeBadPassword:    "BAD decode password error",
	codeUserDenied:     "NO access denied by user filter",
	codeNoMaildir:      "NO cannot get mailbox location from database",
	codeTooManyFails:   "NO too many failures, user will be blocked for a while",
	codeAuthFailed:     "NO Wrong username or password, or administratively blocked",
	codeMIDBOffline:    "NO server internal error, missing MIDB connection",
	codeMIDBRdwr:       "NO server internal error, fail to communicate with MIDB",
	codeMIDBError:      "NO server internal error, ",
	codeParseError:     "NO cannot parse message, format error",
	codeSaveFailed:     "NO fail to save message",
	codeBadFolderName:  "NO folder name format error",
	codeReservedCreate: "NO CREATE can not create reserved folder name",
	codeDelHasSub:      "NO DELETE can not delete subfolder",
	codeDelReserved:    "NO DELETE can not delete reserved folder name",
	codeRenReserved:    "NO RENAME can not rename reserved folder name",
	codeNoMemory:       "NO server internal error: out of memory",
	codeCopyFailed:     "NO COPY failed",
	codeUIDCopyFailed:  "NO UID COPY failed",
	codeTooManyResults: "NO Too many messages in result",
	codeNoMessageFile:  "NO Unable to read message file",
	codeDelSubFirst:    "NO DELETE subfolders first",
	codeNonexistent:    "NO [NONEXISTENT] Folder does not exist",
	codeAlreadyExists:  "NO CREATE: folder already exists",
}

// statusLine returns the canned text for a code. Unknown codes get a
// generic server error so a table gap never produces a silent reply.
func statusLine(code int) string {
	if text, ok := codeText[code]; ok {
		return text
	}
	return fmt.Sprintf("NO server internal error, unknown condition %d", code)
}
