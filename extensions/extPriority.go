package extensions

/*
Default Block Parsers
=====================
SetextHeadingParser     100
ThematicBreakParser     200
ListParser              300
ListItemParser          400
CodeBlockParser         500
ATXHeadingParser        600
FencedCodeBlockParser   700
BlockquoteParser        800
HTMLBlockParser         900
ParagraphParser         1000

Default Inline Parsers
======================
CodeSpanParser   100
LinkParser       200
AutoLinkParser   300
RawHTMLParser    400
EmphasisParser   500

extensions
==========
footnoteID                   100

DefinitionListHTMLRenderer   500
FootnoteHTMLRenderer         500
StrikethroughHTMLRenderer    500
TableHTMLRenderer            500
TaskCheckBoxHTMLRenderer     500

TaskCheckBoxParser           0
DefinitionListParser         101
FootnoteParser               101
DefinitionDescriptionParser  102
StrikethroughParser          500
FootnoteBlockParser          999
LinkifyParser                999
TypographerParser            9999

defaultTableASTTransformer   0
tableStyleTransformer        0
TableParagraphTransformer    200
FootnoteASTTransformer       999
*/

const (
	priorityAttrTagParser          = 0 // ahead of every default inline parser
	priorityAttrTagHTMLRenderer    = 500
	priorityAlertParser            = 199
	priorityAlertTransformer       = 100
	priorityMediaTransformer       = 50
	priorityMediaHTMLRenderer      = 500
	priorityLinkRewriteTransformer = 0
)
