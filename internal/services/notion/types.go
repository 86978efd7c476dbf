package notion

import "strings"

type richText struct {
	PlainText string `json:"plain_text"`
}

type titleProperty struct {
	Type  string     `json:"type"`
	Title []richText `json:"title"`
}

type pageResponse struct {
	ID             string                   `json:"id"`
	URL            string                   `json:"url"`
	LastEditedTime string                   `json:"last_edited_time"`
	Properties     map[string]titleProperty `json:"properties"`
}

func (p pageResponse) title() string {
	for _, prop := range p.Properties {
		if prop.Type != "title" {
			continue
		}
		return joinRichText(prop.Title)
	}
	return ""
}

type searchResponse struct {
	Results []pageResponse `json:"results"`
}

type blockListResponse struct {
	Results    []block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor string  `json:"next_cursor"`
}

type richTextContainer struct {
	RichText []richText `json:"rich_text"`
}

type block struct {
	Type             string             `json:"type"`
	Paragraph        *richTextContainer `json:"paragraph"`
	HeadingOne       *richTextContainer `json:"heading_1"`
	HeadingTwo       *richTextContainer `json:"heading_2"`
	HeadingThree     *richTextContainer `json:"heading_3"`
	BulletedListItem *richTextContainer `json:"bulleted_list_item"`
	NumberedListItem *richTextContainer `json:"numbered_list_item"`
	Quote            *richTextContainer `json:"quote"`
	Code             *richTextContainer `json:"code"`
}

// plainText flattens the text-bearing block types; unsupported blocks
// (images, tables, embeds) contribute nothing.
func (b block) plainText() string {
	for _, container := range []*richTextContainer{
		b.Paragraph,
		b.HeadingOne,
		b.HeadingTwo,
		b.HeadingThree,
		b.BulletedListItem,
		b.NumberedListItem,
		b.Quote,
		b.Code,
	} {
		if container != nil {
			return joinRichText(container.RichText)
		}
	}
	return ""
}

func joinRichText(parts []richText) string {
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(part.PlainText)
	}
	return strings.TrimSpace(b.String())
}
