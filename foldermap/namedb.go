// Package foldermap maps between protocol-visible IMAP folder names
// and the fixed storage names the index backend uses.
//
// The inbox and the four other special folders (drafts, sent, trash,
// junk) have fixed backend names; their protocol-visible display names
// are localized. Every other folder name is carried as a hex encoding
// of its UTF-8 form, which keeps the mapping exactly invertible.
package foldermap

import "golang.org/x/text/language"

// Special folder identifiers, indexing the per-language name tables.
type FolderID int

const (
	FolderDraft FolderID = iota
	FolderSent
	FolderTrash
	FolderJunk
)

// Localized display names for the special folders, keyed by base
// language. The set mirrors the languages the folder name database of
// the companion groupware ships; English is the fallback.
var names = map[string][4]string{
	"en": {"Drafts", "Sent Items", "Deleted Items", "Junk Email"},
	"de": {"Entwürfe", "Gesendete Elemente", "Gelöschte Elemente", "Junk-E-Mail"},
	"fr": {"Brouillons", "Éléments envoyés", "Éléments supprimés", "Courrier indésirable"},
	"es": {"Borradores", "Elementos enviados", "Elementos eliminados", "Correo no deseado"},
	"it": {"Bozze", "Posta inviata", "Posta eliminata", "Posta indesiderata"},
	"nl": {"Concepten", "Verzonden items", "Verwijderde items", "Ongewenste e-mail"},
	"pt": {"Rascunhos", "Itens Enviados", "Itens Excluídos", "Lixo Eletrônico"},
	"ru": {"Черновики", "Отправленные", "Удаленные", "Нежелательная почта"},
	"ja": {"下書き", "送信済みアイテム", "削除済みアイテム", "迷惑メール"},
	"zh": {"草稿", "已发送邮件", "已删除邮件", "垃圾邮件"},
}

var matcher language.Matcher

func init() {
	// English first so it wins when nothing else matches.
	tags := []language.Tag{language.English}
	for lang := range names {
		if lang == "en" {
			continue
		}
		tags = append(tags, language.Make(lang))
	}
	matcher = language.NewMatcher(tags)
}

// resolveLang maps an arbitrary language tag ("de-AT", "pt_BR", ...)
// to a base language present in the name tables, falling back to
// English.
func resolveLang(lang string) string {
	tag, _ := language.MatchStrings(matcher, lang)
	base, _ := tag.Base()
	if _, ok := names[base.String()]; !ok {
		return "en"
	}
	return base.String()
}

// DisplayName returns the localized protocol-visible name of a special
// folder.
func DisplayName(lang string, id FolderID) string {
	return names[resolveLang(lang)][id]
}
