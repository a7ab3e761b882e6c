package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/personaforge/personaforge/internal/model"
)

// Prompts are written in Japanese because the interview corpus is. Each
// builder returns the system and user prompt for one operation; the output
// schema is embedded verbatim so the decode layer knows what to expect.

const extractionSystemPrompt = `あなたは定性データ分析の専門家です。アンケートやインタビュー記録から、回答者（respondent）を識別し、各回答者ごとに事実のみを抽出して構造化されたJSONを生成してください。

制約:
- 入力テキストを分析し、回答者（respondent）を識別してください（1人のアンケートなら1人、複数人のインタビューなら複数人）
- 発言に存在しない情報は推測せず、nullを返してください
- 解釈や要約をせず、発言から直接抽出できる事実のみを記録してください
- 各フィールドに対応する原文の引用（quotes）を必ず含めてください
- trigger（購入・検討のきっかけ）とbarriers（迷い・不安・離脱理由）は、該当する情報が含まれている場合は必ず抽出してください
- 出力はJSONのみで、余計な文章は含めないでください

出力形式: ExtractionRecordの配列（JSON配列）`

func buildExtractionPrompt(req ExtractionRequest) string {
	var meta string
	if m := req.Metadata; m != nil {
		meta = fmt.Sprintf("\nメタデータ:\n- インタビュー名: %s\n- 実施日: %s\n- セグメント: %s\n- 担当者: %s",
			orUnspecified(m.InterviewName), orUnspecified(m.InterviewDate),
			orUnspecified(m.Segment), orUnspecified(m.Owner))
	}

	return fmt.Sprintf(`以下のアンケート/インタビュー記録から、回答者（respondent）を識別し、各回答者ごとにExtraction JSONを生成してください。

入力テキスト:
%s%s

各回答者ごとに、以下のフィールドを抽出してください:
- respondent_id: 回答者ID（識別できない場合は生成、例: "R001"）
- role: 代理購入者/本人購入者/不明 または null（固定の選択肢に限定せず、適切な表現を使用）
- relationship: 配偶者/親/子/その他 または null（例: "恋人"、"同棲パートナー"なども可）
- household: {composition?, age_range?, occupation?} または null
- purchase_context: {timing?, channel?, type?: "定期"|"まとめ買い"|"単発"|null} または null
- trigger: 配列形式（最低でも空配列[]）。「きっかけ」「〜が気になって」「〜の広告を見て」「〜がなくなった」などの表現を探してください
- job_to_be_done: {functional?: string[], emotional?: string[], social?: string[]} または null
- barriers: 配列形式（最低でも空配列[]）。「迷った」「〜が高くて」「〜が合わなかった」などの表現を探してください
- decision_criteria: {price?, trust?, effort?, effectiveness?} または null（各値は0-1の範囲）
- information_sources: 配列形式（最低でも空配列[]）
- behavior_patterns: {who?, when?, what?} または null
- quotes: 各フィールドに対応する原文引用（必須、最低1件以上）
  - quoteText: 原文抜粋（必須。要約や言い換えではなく、元のテキストの該当部分を文字単位でそのまま引用）
  - source: 出典ファイル（必須、入力ソースID: "%s"）
  - category: フィールド名（例: "trigger", "barriers", "role"）
  - linked_fields: このquoteが紐付いているフィールド名の配列

重要:
- quoteTextは入力テキストから文字単位で正確に引用してください。要約・言い換え・再構成は厳禁です
- フィールド名（「職業」「年齢」など）をquoteTextに含めないでください。値のみを引用してください
- 入力テキスト内に含まれるすべての回答者に対してExtractionRecordを生成してください。省略しないでください
- JSON配列のみを返してください。余計な文章や説明は含めないでください`,
		req.SourceText, meta, req.SourceID)
}

const aggregationSystemPrompt = `あなたは定性データ分析の専門家です。Extraction JSONの配列から、クラスタリングとパターン抽出を行ってください。

制約:
- Extraction JSONのみを入力として使用してください
- 生テキストや発言には直接戻らないでください
- 優劣や正解を決めないでください
- 2〜5個のクラスタを生成してください
- 各クラスタの出現率を算出してください
- 代表的パターン（trigger/decision_criteria/barriers）を抽出してください
- 代表引用（3〜7件）をquotesから選択してください

出力形式: JSON（Aggregation形式）`

func buildAggregationPrompt(records []model.ExtractionRecord) string {
	return fmt.Sprintf(`以下のExtraction JSONの配列から、Aggregationを生成してください。

Extraction Records:
%s

以下の形式でJSONを返してください:
{
  "clusters": [
    {
      "id": "cluster-1",
      "name": "クラスタ名",
      "respondent_ids": ["R001", "R002"],
      "prevalence": 0.35,
      "patterns": {
        "triggers": ["トリガー1", "トリガー2"],
        "decision_criteria": { "price": 0.8, "trust": 0.3 },
        "barriers": ["障壁1", "障壁2"]
      },
      "representative_quotes": [
        { "quote": "引用テキスト", "respondent_id": "R001", "category": "trigger", "quote_id": "quote-001" }
      ]
    }
  ],
  "total_respondents": 20,
  "metadata": { "generated_at": "ISO日時", "extraction_count": 20 }
}`, mustJSON(records))
}

const personaSystemPrompt = `あなたは定性データ分析の専門家です。Aggregation結果から、Personaカードを生成してください。

制約:
- Aggregation結果のみを入力として使用してください
- Extractionに直接戻らないでください
- Aggregationにない事実を追加しないでください
- Persona段階では、仮説を断定的に定義してください。「傾向がある」「可能性がある」などの曖昧な表現は避けてください
- 年齢や具体的なパーソナリティを、データから類推して含めてください（仮説でも可）
- Evidence（引用と件数）は必須です
- 出力はJSON配列のみで、余計な文章は含めないでください

出力形式: JSON（Persona配列）のみ`

func buildPersonaPrompt(agg *model.Aggregation, axes []model.PersonaAxis) string {
	axesDescription := "（軸が設定されていません）"
	if len(axes) > 0 {
		var lines []string
		for i, axis := range axes {
			line := fmt.Sprintf("  %d. %s", i+1, axis.Name)
			if axis.Description != "" {
				line += ": " + axis.Description
			}
			lines = append(lines, line)
		}
		axesDescription = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`以下のAggregation結果から、Personaカードを生成してください。

Aggregation:
%s

【ペルソナ軸】
以下の軸に沿って、各クラスタからPersonaカードを生成してください:
%s

各クラスタを上記の軸のいずれかに分類し、クラスタごとに1つのPersonaカードを生成してください。以下の形式でJSON配列を返してください:
[
  {
    "id": "persona-1",
    "cluster_id": "cluster-1",
    "one_line_summary": "1行要約（断定的表現）",
    "background_story": "背景ストーリー（短文、断定的表現。年齢・職業・パーソナリティを含める）",
    "proxy_purchase_structure": { "whose_problem": "誰の課題か", "who_solves": "誰が解決するか", "how": "どう解決しているか" },
    "job_to_be_done": { "functional": ["機能面JTBD"], "emotional": ["感情面JTBD"], "social": ["社会面JTBD"] },
    "decision_criteria_top5": [ { "criterion": "価格", "weight": 0.8 } ],
    "typical_journey": { "trigger": "きっかけ", "consideration": "検討", "purchase": "購入", "retention": "継続（情報不足の場合は「（情報不足）」）" },
    "common_misconceptions": ["誤解しやすいポイント"],
    "effective_strategies": { "messages": ["メッセージ案"], "touchpoints": ["導線案"], "offers": ["オファー案"] },
    "evidence": { "quotes": [ { "text": "引用", "respondent_id": "R001", "category": "trigger" } ], "count": 15 }
  }
]

重要:
- JSON配列のみを返してください
- evidence.quotesは必須です。最低1件以上のquoteを含めてください
- 断定的な表現を使用してください`, mustJSON(agg), axesDescription)
}

const axesSystemPrompt = `あなたは定性データ分析の専門家です。Aggregation結果を分析して、適切なペルソナ軸を生成してください。

制約:
- Aggregation結果のクラスタを分析し、適切な分類軸を提案してください
- 2〜5個の軸を生成してください
- 各軸は明確で区別可能な分類基準であること
- 軸名は簡潔で分かりやすいこと
- 出力はJSON配列のみで、余計な文章は含めないでください

出力形式: JSON（PersonaAxis配列）のみ`

func buildAxesPrompt(agg *model.Aggregation) string {
	return fmt.Sprintf(`以下のAggregation結果を分析して、適切なペルソナ軸を生成してください。

Aggregation:
%s

以下の形式でJSON配列を返してください:
[
  { "id": "axis-1", "name": "軸名（例: 自身購入で悩みが深い人）", "description": "軸の説明（任意）", "order": 0 }
]

重要:
- JSON配列のみを返してください
- 2〜5個の軸を生成してください`, mustJSON(agg))
}

const comparisonSystemPrompt = `あなたは定性データ分析の専門家です。複数のペルソナを詳細に比較分析してください。

制約:
- 各ペルソナの情報を詳細に分析し、具体的な共通点と相違点を抽出してください
- 各フィールドごとに個別に分析してください
- 「各ペルソナの特徴が異なる」のような一般的な記述は避け、具体的な違いを記述してください
- 事実ベースで分析し、推測や補完は行わないでください
- 出力はJSON形式のみで、余計な文章は含めないでください

出力形式: JSON（比較分析結果）のみ`

func buildComparisonPrompt(personas []model.Persona) string {
	return fmt.Sprintf(`以下のペルソナを詳細に比較分析してください。

ペルソナ:
%s

以下の形式でJSONを返してください:
{
  "commonPoints": ["共通点（具体的に記述）"],
  "differences": ["相違点（具体的に記述、例: 「ペルソナAは価格を最優先するが、ペルソナBは効果を最優先する。」）"],
  "detailedAnalysis": {
    "one_line_summary": { "commonPoints": ["..."], "differences": ["..."] },
    "background_story": { "commonPoints": ["..."], "differences": ["..."] },
    "proxy_purchase_structure": { "commonPoints": ["..."], "differences": ["..."] },
    "job_to_be_done": { "commonPoints": ["..."], "differences": ["..."] },
    "decision_criteria_top5": { "commonPoints": ["..."], "differences": ["..."] },
    "typical_journey": { "commonPoints": ["..."], "differences": ["..."] },
    "common_misconceptions": { "commonPoints": ["..."], "differences": ["..."] },
    "effective_strategies": { "commonPoints": ["..."], "differences": ["..."] }
  }
}

重要:
- JSONのみを返してください
- 各フィールドごとに、共通点と相違点を個別に分析してください`, mustJSON(personas))
}

func orUnspecified(s string) string {
	if s == "" {
		return "未指定"
	}
	return s
}

func mustJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
