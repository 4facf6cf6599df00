package domain

import "regexp"

var mentionPattern = regexp.MustCompile(`@([\p{L}\p{N}_-]+)`)

// ParseMentions resolves @username tokens in content against the members of
// group. Self-mentions and unknown names are dropped, repeats of the same user
// keep only the first occurrence, and at most MaxMentions are returned.
// Offsets cover the whole "@token" and count runes, not bytes.
func ParseMentions(content string, group *ChatGroup, senderID int) []Mention {
	if group == nil || content == "" {
		return []Mention{}
	}

	runeOffset := byteToRuneOffsets(content)
	seen := make(map[int]struct{})
	mentions := []Mention{}

	for _, loc := range mentionPattern.FindAllStringSubmatchIndex(content, -1) {
		if len(mentions) == MaxMentions {
			break
		}

		member, ok := group.FindMemberByUsername(content[loc[2]:loc[3]])
		if !ok || member.UserID == senderID {
			continue
		}
		if _, dup := seen[member.UserID]; dup {
			continue
		}
		seen[member.UserID] = struct{}{}

		mentions = append(mentions, Mention{
			UserID:     member.UserID,
			Username:   member.Username,
			StartIndex: runeOffset[loc[0]],
			EndIndex:   runeOffset[loc[1]],
		})
	}
	return mentions
}

func MentionedUserIDs(mentions []Mention) []int {
	ids := make([]int, len(mentions))
	for i, m := range mentions {
		ids[i] = m.UserID
	}
	return ids
}

// byteToRuneOffsets maps every byte offset that starts a rune (plus len(s))
// to its rune index.
func byteToRuneOffsets(s string) map[int]int {
	offsets := make(map[int]int, len(s)+1)
	n := 0
	for i := range s {
		offsets[i] = n
		n++
	}
	offsets[len(s)] = n
	return offsets
}
