package prompts

// Shared instruction blocks of the prompts
const (
	toolFormatInstructions = `TOOL USAGE INSTRUCTIONS:
I am sharing available tools again: {{ .Tools }}
skip using source filter for now, unless mentioned.
You are highly encouraged to use more parameters, also allowed to repeat in different forms if required, but don't make things on your own like source or something unless mentioned to keep query general.
1. Based on the extracted entities and available tools above, select the MOST APPROPRIATE tool, and give priority to date and time related parameters in tools selection than anything else if date or time is present in query.
the appropriate filters like Dates and whatever is available to be used in the formats, use those parameters very well. Interpret English to numericals if required like recent news to dates etc.
2. If the request requires a tool, respond with JSON in one of these EXACT formats:
   Format 1: {"action": "use_tool", "tool": "tool_name", "arguments": {"parameter": "value"}}
   Format 2: {"action": "tool_name", "arguments": {"parameter": "value"}}
   Format 3: {"action": "tool_name"} (for tools with no parameters)

   EXAMPLE TOOL CALLS:
   Entity search: {"action": "find_articles_by_entity", "arguments": {"entityName": "John Smith"}}
   Pagination: {"action": "get_paginated_articles_with_entities", "arguments": {"pageNumber": 1, "pageSize": 20}}
   Keywords: {"action": "find_articles_by_entity_and_keywords", "arguments": {"targetEntityName": "Tesla", "keywords": ["electric", "vehicle"]}}
   Top entities: {"action": "get_top_mentioned_entities", "arguments": {"limit": 10}}

3. Use EXACT tool names from the relevant tools list above
4. For numeric parameters, use actual numbers not strings (e.g., 5 not "5")
5. For array parameters, use proper JSON array syntax: ["item1", "item2"]
6. Match parameter names and types exactly to the tool schema
7. Only include required parameters and relevant optional ones
8. Use appropriate limits for paginated results (typically 10-50 articles)`

	parameterMappingHints = `PARAMETER MAPPING HINTS:
• For entity searches: use 'entityName' parameter for person/organization/location names
• For target entity searches: use 'targetEntityName' parameter (co-occurrence, keyword searches)
• For keyword searches: use 'keywords' parameter as array of strings ["term1", "term2"]
• For pagination: use 'pageNumber' (1-based) AND 'pageSize' parameters (both required)
• For top entities: use 'limit' parameter (required, typically 10-50)
• For dates: use 'startDate' and 'endDate' parameters (ISO format strings)
• For filtering: use 'category', 'source', 'minMentionCount', 'minMentionTF' parameters`

	altParameterHints = `PARAMETER MAPPING HINTS:
- For entity searches: use 'entity' parameter for person/organization/location names
- For keyword searches: use 'keywords' parameter for search terms
- For entity analysis: use 'entity' parameter for entities to analyze
- For limits: use 'limit' parameter (typically 10-50)
- For pagination: use 'page' parameter when browsing results`

	chainParameterHints = `PARAMETER MAPPING HINTS:
- For date queries: use start_epoch/end_epoch (Unix timestamps)
- For search queries: use 'query' parameter for search terms
- For limits: use 'limit' parameter (typically 10-50)
- For categories: use exact category names
- For authors: use exact author names`

	criticalJSONRules = `CRITICAL JSON FORMAT RULES:
• When using tools, respond with ONLY valid JSON - no extra text, no explanations, no markdown
• Start your response directly with { and end with }
• No text before or after the JSON
• Use double quotes for all strings
• Tool names must be EXACT matches from the list above
• Never use undefined, null, or empty tool names`

	responseFormatRules = `RESPONSE FORMAT: 
• For tools: ONLY JSON (no other text)
• For conversation: Natural language response`

	chainStepAdditions = `   In case the query is having something else as well like summarize this or predict this something not related to fetching but doing English task.
   Then, ignore that and give correct format of json parsing.
   Later, when query is sent it will get handled.`

	multiChunkAdditions = `Remember: Only use tools when they're specifically needed for the user's request. The tools above are pre-selected as most relevant for this query.

MULTI-CHUNK PROCESSING:
- Process this chunk in context of the larger query
- If this is not the final chunk, provide intermediate results
- If this is the final chunk, provide comprehensive results
- Maintain consistency across chunks`

	chainStepInstructions = `8. When someone ask for something specific in a date range and you are calling the date_range function, with limit param 100 so that , it is possible to find relevant content from it.

ANALYSIS INSTRUCTIONS:
- Focus on the specific objective of this step
- Build upon previous step results if available
- Prepare output that will be useful for subsequent steps
- Be thorough but focused on this step's purpose

Remember: This is part of a larger analysis chain. Stay focused on THIS step's objective.`
)

// DefaultCategoriesContext describes the categories of the news dataset
const DefaultCategoriesContext = `
AVAILABLE CATEGORIES IN DATASET (with article counts):
Major Categories:
• politics (61,992 articles) • politics,COVID (8,257 articles)  
• entertainment (41,153 articles) • entertainment,COVID (1,240 articles)
• sports (29,084 articles) • sports,COVID (1,089 articles)
• finance (24,797 articles) • finance,COVID (587 articles)
• lifestyle (10,654 articles) • lifestyle,COVID (396 articles)
• world (9,124 articles) • world,COVID (1,659 articles)
• technology (8,468 articles) • technology,COVID (139 articles)

Regional/Location Categories:
• delhi and ncr (48 articles) • bengaluru (14 articles) • north east (38 articles)
• karnataka-2 (10 articles) • telangana (14 articles) • himachal (3 articles)

Specialized Categories:
• editorial (237 articles) • viral (389 articles) • environment (40 articles)
• health and medicine (40 articles) • science and environment (110 articles)
• assembly elections (71 articles) • home and kitchen (156 articles)
• electronics (22 articles) • auto (10 articles) • blog (14 articles)

When using category-based tools, use these exact category names for best results.`

// DefaultCurrentDate is the date relative dates are interpreted against in chain steps
const DefaultCurrentDate = "2023 Feb"
