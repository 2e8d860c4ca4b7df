package intent

import "fmt"

// analysisPromptTemplate instructs the model to extract gender, ranked product
// types and an expanded descriptive phrase from a product search query.
const analysisPromptTemplate = `Analyze the following product search query and extract structured information.

Input: %q

Instructions:
- You are an expert at analyzing e-commerce search queries.
- Detect user intent: product types, contextual attributes and gender preference ('male'|'female'|'unisex'|'null').
- List the top 3-5 product types in order of relevance. The first type must always be the main product named in the query. Product types are single words (e.g. suit, shirt, shoe), not phrases.
- Detect descriptive attributes such as color, material (e.g. cotton, leather) and style (e.g. v-neck, slim fit).
- The expanded_query should read like a product title or a rich product description. It must include the detected gender (when inferable), the main product type, the descriptive attributes and contextual qualifiers (e.g. office, summer, sport, casual).
- If the query contains negative constraints ("except", "not", "without"), remove those terms entirely from product_types and expanded_query. Do not return the negated constraint anywhere.
- If gender is not explicitly mentioned, infer it from context and product types. If no context supports an inference, set "gender": "null".

Examples:
Query: "I need a black suit for the office"
Output: {"gender": "male", "product_types": ["suit", "shirt", "shoe", "tie"], "expanded_query": "black formal office suit professional business wear classic fit shirt and shoes"}

Query: "casual running shoes for men"
Output: {"gender": "male", "product_types": ["shoe", "sock", "short"], "expanded_query": "men casual running shoes comfortable walking sneaker sport socks"}

Query: "jacket and backpack for mountain hiking"
Output: {"gender": "null", "product_types": ["jacket", "backpack", "boot"], "expanded_query": "mountain hiking outdoor jacket durable waterproof boots lightweight backpack"}

Query: "black women's jacket but not leather"
Output: {"gender": "female", "product_types": ["jacket", "coat", "shirt"], "expanded_query": "black women jacket fabric seasonal bomber coat water resistant"}

Now analyze the query: %q`

// renderPrompt fills the analysis template with the user query.
func renderPrompt(query string) string {
	return fmt.Sprintf(analysisPromptTemplate, query, query)
}
