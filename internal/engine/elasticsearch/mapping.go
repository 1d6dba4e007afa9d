package elasticsearch

// DefaultIndexName is the default Elasticsearch index used for content documents.
const DefaultIndexName = "travel_content"

// indexSettings returns the analysis settings applied when the index is created.
func indexSettings() string {
	return `{
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "content_text": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      },
      "normalizer": {
        "lowercase_keyword": {
          "type": "custom",
          "filter": ["lowercase"]
        }
      }
    }
  }`
}

// indexProperties returns the field mapping. Only additive changes are
// allowed here: EnsureSchema applies it to live indices.
func indexProperties() string {
	return `{
    "properties": {
      "id":          { "type": "keyword" },
      "title":       { "type": "text", "analyzer": "content_text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "description": { "type": "text", "analyzer": "content_text" },
      "rating":      { "type": "float" },
      "likeCount":   { "type": "long" },
      "budget":      { "type": "double" },
      "published":   { "type": "boolean" },
      "type":        { "type": "keyword" },
      "userId":      { "type": "keyword" },
      "createdAt":   { "type": "date" },
      "updatedAt":   { "type": "date" },
      "location":    { "type": "geo_point" },
      "suggestions": { "type": "completion", "analyzer": "simple", "preserve_separators": true, "max_input_length": 100 }
    }
  }`
}

// buildIndexMapping returns the full create-index body.
func buildIndexMapping() string {
	return `{
  "settings": ` + indexSettings() + `,
  "mappings": ` + indexProperties() + `
}`
}
